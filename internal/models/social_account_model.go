package models

import (
	"time"
)

type SocialAccount struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	Language        string    `db:"language" json:"language"`
	AccessToken     string    `db:"access_token" json:"-"`
	RefreshToken    string    `db:"refresh_token" json:"-"`
	TokenExpiresAt  time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// AccountUser links an authoring user to an account. Each user can switch
// their own link off without affecting other users of the same account.
type AccountUser struct {
	AccountID int64     `db:"account_id" json:"account_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LinkedAccount is an account as seen by one of its users.
type LinkedAccount struct {
	SocialAccount
	IsActive bool `json:"is_active"`
}
