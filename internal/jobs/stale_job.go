package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/repository"
)

type StaleFailer interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// StaleJob fails deliveries whose publish attempt never reported back and
// releases content left in publishing when its task was lost.
type StaleJob struct {
	pub   StaleFailer
	pr    repository.PostRepository
	tr    repository.ThreadRepository
	after time.Duration
	now   func() time.Time
}

func NewStaleJob(pub StaleFailer, pr repository.PostRepository, tr repository.ThreadRepository, after time.Duration) *StaleJob {
	return &StaleJob{pub: pub, pr: pr, tr: tr, after: after, now: time.Now}
}

func (j *StaleJob) Sweep(ctx context.Context) {
	n, err := j.pub.FailStale(ctx, j.after)
	if err != nil {
		slog.Error("stale sweep", "error", err)
	} else if n > 0 {
		slog.Warn("failed stale deliveries", "count", n, "older_than", j.after)
	}

	cutoff := j.now().Add(-j.after)

	postIDs, err := j.pr.ReleaseStuck(ctx, cutoff)
	if err != nil {
		slog.Error("unable to release stuck posts", "error", err)
	}
	threadIDs, err := j.tr.ReleaseStuck(ctx, cutoff)
	if err != nil {
		slog.Error("unable to release stuck threads", "error", err)
	}

	if len(postIDs)+len(threadIDs) > 0 {
		slog.Warn("released stuck content", "posts", postIDs, "threads", threadIDs, "older_than", j.after)
	}
}
