package models

import "time"

// DeliveryEvent is emitted after every committed delivery transition.
type DeliveryEvent struct {
	Kind       DeliveryKind   `json:"kind"`
	DeliveryID int64          `json:"delivery_id"`
	ParentID   int64          `json:"parent_id"`
	AccountID  int64          `json:"account_id"`
	Platform   string         `json:"platform"`
	Status     DeliveryStatus `json:"status"`
	ExternalID string         `json:"external_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	At         time.Time      `json:"at"`
}
