// Package queue carries scheduled publications and thread continuations
// through asynq.
package queue

import (
	"fmt"
	"time"

	"github.com/maheshrc27/publishflow/internal/publisher"
)

const (
	TaskTypePublishPost   = "publish:post"
	TaskTypePublishThread = "publish:thread"
	TaskTypeThreadStep    = "thread:step"
)

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}

type PublishThreadPayload struct {
	ThreadID int64 `json:"thread_id"`
}

// Queue runs publish tasks against the publisher.
type Queue struct {
	pub publisher.Publisher
}

func NewQueue(pub publisher.Publisher) *Queue {
	return &Queue{pub: pub}
}

func postTaskID(postID int64, claimedAt time.Time) string {
	return fmt.Sprintf("post:%d:claim:%d", postID, claimedAt.UnixMilli())
}

func threadTaskID(threadID int64, claimedAt time.Time) string {
	return fmt.Sprintf("thread:%d:claim:%d", threadID, claimedAt.UnixMilli())
}

// stepTaskID identifies one continuation. Duplicates of the same step share
// an id; a step put back after arriving early gets a new one.
func stepTaskID(s publisher.Step) string {
	id := fmt.Sprintf("thread:%d:account:%d:segment:%d:attempt:%d", s.ThreadID, s.AccountID, s.Position, s.Attempt)
	if s.Deferred > 0 {
		id += fmt.Sprintf(":deferred:%d", s.Deferred)
	}
	return id
}
