package models

import "time"

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryPublishing DeliveryStatus = "publishing"
	DeliveryPublished  DeliveryStatus = "published"
	DeliveryFailed     DeliveryStatus = "failed"
	// DeliveryPartial only applies to thread accounts.
	DeliveryPartial DeliveryStatus = "partial"
)

// Publishable reports whether a delivery may enter publishing.
func (s DeliveryStatus) Publishable() bool {
	return s == DeliveryPending || s == DeliveryFailed
}

// Resettable reports whether a delivery may be reset to pending.
func (s DeliveryStatus) Resettable() bool {
	return s == DeliveryPublished || s == DeliveryFailed || s == DeliveryPartial
}

type DeliveryKind string

const (
	DeliveryKindPost    DeliveryKind = "post"
	DeliveryKindSegment DeliveryKind = "thread_segment"
)

// Delivery is one (content unit, account) publication record: a row of
// post_platforms or thread_segment_platforms.
type Delivery struct {
	ID                  int64          `db:"id" json:"id"`
	Kind                DeliveryKind   `json:"kind"`
	ParentID            int64          `json:"parent_id"`
	AccountID           int64          `db:"account_id" json:"account_id"`
	Platform            string         `db:"platform" json:"platform"`
	Status              DeliveryStatus `db:"status" json:"status"`
	ExternalID          *string        `db:"external_id" json:"external_id,omitempty"`
	ErrorMessage        *string        `db:"error_message" json:"error_message,omitempty"`
	PublishedAt         *time.Time     `db:"published_at" json:"published_at,omitempty"`
	PublishingStartedAt *time.Time     `db:"publishing_started_at" json:"-"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// StatusCounts are the per-status child counters kept on a parent row and
// adjusted in the same transaction as every child transition.
type StatusCounts struct {
	Pending    int `json:"pending"`
	Publishing int `json:"publishing"`
	Published  int `json:"published"`
	Failed     int `json:"failed"`
	Partial    int `json:"partial,omitempty"`
}

func (c StatusCounts) Total() int {
	return c.Pending + c.Publishing + c.Published + c.Failed + c.Partial
}

// Apply moves one child from one status to another.
func (c StatusCounts) Apply(from, to DeliveryStatus) StatusCounts {
	c.add(from, -1)
	c.add(to, 1)
	return c
}

func (c *StatusCounts) add(s DeliveryStatus, n int) {
	switch s {
	case DeliveryPending:
		c.Pending += n
	case DeliveryPublishing:
		c.Publishing += n
	case DeliveryPublished:
		c.Published += n
	case DeliveryFailed:
		c.Failed += n
	case DeliveryPartial:
		c.Partial += n
	}
}
