package transfer

import "github.com/maheshrc27/publishflow/internal/models"

// PostCreation is the body of post create and edit requests. ScheduledTime
// uses the "2006-01-02T15:04" layout in UTC; an empty value keeps the post
// a draft.
type PostCreation struct {
	Title         string          `json:"title"`
	Content       string          `json:"content"`
	Language      string          `json:"language"`
	Variants      models.Variants `json:"variants"`
	Link          string          `json:"link"`
	Location      string          `json:"location"`
	ScheduledTime string          `json:"scheduled_time"`
	AccountIDs    []int64         `json:"account_ids"`
	MediaIDs      []int64         `json:"media_ids"`
}

type PostDetails struct {
	*models.Post
	Deliveries []*models.Delivery   `json:"deliveries"`
	Media      []*models.MediaAsset `json:"media"`
}

type ActiveUpdate struct {
	IsActive bool `json:"is_active"`
}
