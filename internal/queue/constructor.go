package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/publishflow/internal/publisher"
)

// TaskEnqueuer is the part of *asynq.Client the scheduler needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues publish tasks with deterministic ids so the same unit is
// never queued twice. Scheduled content is keyed by its claim, so a task
// archived after an earlier claim never blocks a later one.
type Scheduler struct {
	client   TaskEnqueuer
	maxRetry int
}

func NewScheduler(client TaskEnqueuer) *Scheduler {
	return &Scheduler{client: client, maxRetry: 3}
}

func (s *Scheduler) EnqueuePost(ctx context.Context, postID int64, claimedAt time.Time) error {
	return s.enqueue(ctx, TaskTypePublishPost, PublishPostPayload{PostID: postID}, postTaskID(postID, claimedAt), 0)
}

func (s *Scheduler) EnqueueThread(ctx context.Context, threadID int64, claimedAt time.Time) error {
	return s.enqueue(ctx, TaskTypePublishThread, PublishThreadPayload{ThreadID: threadID}, threadTaskID(threadID, claimedAt), 0)
}

// ScheduleStep implements publisher.StepScheduler.
func (s *Scheduler) ScheduleStep(ctx context.Context, step publisher.Step, delay time.Duration) error {
	return s.enqueue(ctx, TaskTypeThreadStep, step, stepTaskID(step), delay)
}

func (s *Scheduler) enqueue(ctx context.Context, typename string, payload any, taskID string, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(typename, taskPayload)
	opts := []asynq.Option{asynq.TaskID(taskID), asynq.MaxRetry(s.maxRetry)}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	_, err = s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Debug("task already queued", "task_id", taskID)
		return nil
	}
	if err != nil {
		slog.Error("unable to enqueue task", "type", typename, "task_id", taskID, "error", err)
		return err
	}

	slog.Info("task scheduled", "type", typename, "task_id", taskID, "delay", delay)
	return nil
}
