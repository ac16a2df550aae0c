package transfer

import "github.com/maheshrc27/publishflow/internal/models"

type SegmentCreation struct {
	Content  string          `json:"content"`
	Language string          `json:"language"`
	Variants models.Variants `json:"variants"`
	MediaIDs []int64         `json:"media_ids"`
}

type ThreadCreation struct {
	Title         string            `json:"title"`
	ScheduledTime string            `json:"scheduled_time"`
	AccountIDs    []int64           `json:"account_ids"`
	Segments      []SegmentCreation `json:"segments"`
}

type SegmentDetails struct {
	*models.ThreadSegment
	Deliveries []*models.Delivery   `json:"deliveries"`
	Media      []*models.MediaAsset `json:"media"`
}

type ThreadDetails struct {
	*models.Thread
	Accounts []*models.ThreadAccount `json:"accounts"`
	Segments []SegmentDetails        `json:"segments"`
}
