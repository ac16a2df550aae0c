package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/publishflow/internal/publisher"
)

// Register binds the task handlers to mux.
func (q *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypePublishPost, q.HandlePublishPostTask)
	mux.HandleFunc(TaskTypePublishThread, q.HandlePublishThreadTask)
	mux.HandleFunc(TaskTypeThreadStep, q.HandleThreadStepTask)
}

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}

	batch, err := q.pub.PublishScheduledPost(ctx, payload.PostID)
	if err != nil {
		return final(err)
	}
	slog.Info("scheduled post processed", "post_id", payload.PostID, "status", batch.Status)
	return nil
}

func (q *Queue) HandlePublishThreadTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishThreadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}

	start, err := q.pub.PublishScheduledThread(ctx, payload.ThreadID)
	if err != nil {
		return final(err)
	}
	slog.Info("scheduled thread started", "thread_id", payload.ThreadID, "accounts", len(start.Accounts))
	return nil
}

func (q *Queue) HandleThreadStepTask(ctx context.Context, task *asynq.Task) error {
	var step publisher.Step
	if err := json.Unmarshal(task.Payload(), &step); err != nil {
		return fmt.Errorf("decoding %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return final(q.pub.ContinueThread(ctx, step))
}

// final stops asynq from retrying errors a retry cannot fix.
func final(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, publisher.ErrNothingToPublish),
		errors.Is(err, publisher.ErrNotFound),
		errors.Is(err, publisher.ErrConflict),
		errors.Is(err, publisher.ErrUnauthorized):
		slog.Warn("dropping task", "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
