package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

// Every runs fn on c at a fixed interval. A run's context expires after one
// interval.
func Every(c *cron.Cron, interval time.Duration, name string, fn func(ctx context.Context)) {
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		start := time.Now()
		fn(ctx)
		slog.Debug("job finished", "job", name, "took", time.Since(start))
	}))
}
