package models

import (
	"encoding/json"
	"time"
)

type PublishAction string

const (
	ActionSubmitted PublishAction = "submitted"
	ActionPublished PublishAction = "published"
	ActionFailed    PublishAction = "failed"
)

// PublishLog is an append-only audit entry for one delivery.
type PublishLog struct {
	ID           int64           `db:"id" json:"id"`
	DeliveryKind DeliveryKind    `db:"delivery_kind" json:"delivery_kind"`
	DeliveryID   int64           `db:"delivery_id" json:"delivery_id"`
	Action       PublishAction   `db:"action" json:"action"`
	Details      json.RawMessage `db:"details" json:"details"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
