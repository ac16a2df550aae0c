package models

import "time"

type PublishMode string

const (
	// PublishModeThread delivers segments one by one as native replies.
	PublishModeThread PublishMode = "thread"
	// PublishModeCompiled merges all segments into a single post.
	PublishModeCompiled PublishMode = "compiled"
)

// ModeFor picks the thread delivery strategy for a platform slug.
func ModeFor(slug string) PublishMode {
	if p, ok := ParsePlatform(slug); ok && p.SupportsNativeThreads() {
		return PublishModeThread
	}
	return PublishModeCompiled
}

type Thread struct {
	ID          int64        `db:"id" json:"id"`
	UserID      int64        `db:"user_id" json:"user_id"`
	Title       string       `db:"title" json:"title"`
	Status      PostStatus   `db:"status" json:"status"`
	ScheduledAt *time.Time   `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt *time.Time   `db:"published_at" json:"published_at,omitempty"`
	Counts      StatusCounts `json:"counts"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

type ThreadSegment struct {
	ID          int64        `db:"id" json:"id"`
	ThreadID    int64        `db:"thread_id" json:"thread_id"`
	Position    int          `db:"position" json:"position"`
	Content     string       `db:"content" json:"content"`
	Language    string       `db:"language" json:"language"`
	Variants    Variants     `db:"variants" json:"variants"`
	Status      PostStatus   `db:"status" json:"status"`
	PublishedAt *time.Time   `db:"published_at" json:"published_at,omitempty"`
	Counts      StatusCounts `json:"counts"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

func (s *ThreadSegment) Text() TextSource {
	return TextSource{Content: s.Content, Language: s.Language, Variants: s.Variants}
}

// ThreadAccount is the per-account pivot of a thread.
type ThreadAccount struct {
	ThreadID      int64          `db:"thread_id" json:"thread_id"`
	AccountID     int64          `db:"account_id" json:"account_id"`
	PublishMode   PublishMode    `db:"publish_mode" json:"publish_mode"`
	Status        DeliveryStatus `db:"status" json:"status"`
	ErrorMessage  *string        `db:"error_message" json:"error_message,omitempty"`
	Attempt       int            `db:"attempt" json:"attempt"`
	NextSegmentAt *time.Time     `db:"next_segment_at" json:"next_segment_at,omitempty"`
	PublishedAt   *time.Time     `db:"published_at" json:"published_at,omitempty"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}
