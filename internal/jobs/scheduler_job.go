package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/metrics"
	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/repository"
)

const schedulerLockKey = "publishflow:scheduler:tick"

// Enqueuer hands due content to the task queue.
// The claim time keys the task, so every claim gets its own.
type Enqueuer interface {
	EnqueuePost(ctx context.Context, postID int64, claimedAt time.Time) error
	EnqueueThread(ctx context.Context, threadID int64, claimedAt time.Time) error
}

// Locker guards a tick against overlapping runs on other instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// SchedulerJob moves due scheduled posts and threads to publishing and
// queues them.
type SchedulerJob struct {
	pr    repository.PostRepository
	tr    repository.ThreadRepository
	enq   Enqueuer
	lock  Locker
	batch int
	ttl   time.Duration
	now   func() time.Time
}

func NewSchedulerJob(
	pr repository.PostRepository,
	tr repository.ThreadRepository,
	enq Enqueuer,
	lock Locker,
	batch int,
	interval time.Duration) *SchedulerJob {
	return &SchedulerJob{
		pr:    pr,
		tr:    tr,
		enq:   enq,
		lock:  lock,
		batch: batch,
		ttl:   interval,
		now:   time.Now,
	}
}

func (j *SchedulerJob) Tick(ctx context.Context) {
	release, ok, err := j.lock.Acquire(ctx, schedulerLockKey, j.ttl)
	if err != nil {
		slog.Error("scheduler lock", "error", err)
		return
	}
	if !ok {
		slog.Debug("scheduler tick already running elsewhere")
		return
	}
	defer release()

	now := j.now()

	postIDs, err := j.pr.ClaimDue(ctx, now, j.batch)
	if err != nil {
		slog.Error("unable to claim due posts", "error", err)
	}
	for _, id := range postIDs {
		metrics.ScheduledClaims.WithLabelValues(string(models.DeliveryKindPost)).Inc()
		if err := j.enq.EnqueuePost(ctx, id, now); err != nil {
			slog.Error("unable to queue post", "post_id", id, "error", err)
			j.revert(ctx, func() error {
				return j.pr.UpdateStatus(ctx, nil, id, models.PostStatusScheduled, nil)
			})
		}
	}

	threadIDs, err := j.tr.ClaimDue(ctx, now, j.batch)
	if err != nil {
		slog.Error("unable to claim due threads", "error", err)
	}
	for _, id := range threadIDs {
		metrics.ScheduledClaims.WithLabelValues("thread").Inc()
		if err := j.enq.EnqueueThread(ctx, id, now); err != nil {
			slog.Error("unable to queue thread", "thread_id", id, "error", err)
			j.revert(ctx, func() error {
				return j.tr.UpdateStatus(ctx, nil, id, models.PostStatusScheduled, nil)
			})
		}
	}

	if len(postIDs)+len(threadIDs) > 0 {
		slog.Info("scheduler tick", "posts", len(postIDs), "threads", len(threadIDs))
	}
}

// revert hands content back to the next tick when it could not be queued.
func (j *SchedulerJob) revert(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		slog.Error("unable to return content to scheduled", "error", err)
	}
}
