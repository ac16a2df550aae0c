package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusPartial    PostStatus = "partial"
)

// Settled reports whether the status is a final aggregate outcome.
func (s PostStatus) Settled() bool {
	return s == PostStatusPublished || s == PostStatusFailed || s == PostStatusPartial
}

// TextVariant overrides the default text for a language, a platform, or both.
// An empty field matches anything.
type TextVariant struct {
	Language string   `json:"language,omitempty"`
	Platform Platform `json:"platform,omitempty"`
	Text     string   `json:"text"`
}

type Variants []TextVariant

func (v Variants) Value() (driver.Value, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

func (v *Variants) Scan(src any) error {
	switch data := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return errors.New("variants: unsupported source type")
	}
}

// TextSource is the authored text of a content unit, before it is resolved
// for a specific account.
type TextSource struct {
	Content  string
	Language string
	Variants Variants
}

type Post struct {
	ID          int64        `db:"id" json:"id"`
	UserID      int64        `db:"user_id" json:"user_id"`
	Title       string       `db:"title" json:"title"`
	Content     string       `db:"content" json:"content"`
	Language    string       `db:"language" json:"language"`
	Variants    Variants     `db:"variants" json:"variants"`
	Link        string       `db:"link" json:"link,omitempty"`
	Location    string       `db:"location" json:"location,omitempty"`
	Status      PostStatus   `db:"status" json:"status"`
	ScheduledAt *time.Time   `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt *time.Time   `db:"published_at" json:"published_at,omitempty"`
	Counts      StatusCounts `json:"counts"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

func (p *Post) Text() TextSource {
	return TextSource{Content: p.Content, Language: p.Language, Variants: p.Variants}
}

type MediaAsset struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	FileType  string    `db:"file_type" json:"file_type"`
	FileSize  int64     `db:"file_size" json:"file_size"`
	FileURL   string    `db:"file_url" json:"file_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PostMedia attaches an asset to a post or a thread segment.
type PostMedia struct {
	OwnerID      int64     `db:"owner_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

// MediaRef is a media item as handed to adapters. Location is either an
// internal object key or, once resolved, a fetchable URL.
type MediaRef struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

func (m MediaRef) IsVideo() bool {
	return len(m.Type) >= 5 && m.Type[:5] == "video"
}
