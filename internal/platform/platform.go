// Package platform implements the publish contract for every supported
// social network.
package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
)

// Options carry optional per-delivery metadata. Adapters ignore fields their
// platform has no use for.
type Options struct {
	// ReplyToID chains the post under an earlier one (thread mode).
	ReplyToID string
	Title     string
	Link      string
	Location  string
}

// Outcome is the result of one publish call. Platform-side failures such as
// rate limits, validation errors or expired tokens are reported here rather
// than returned as Go errors.
type Outcome struct {
	Success    bool
	ExternalID string
	Error      string
}

func Published(externalID string) Outcome {
	return Outcome{Success: true, ExternalID: externalID}
}

func Failed(format string, args ...any) Outcome {
	return Outcome{Error: fmt.Sprintf(format, args...)}
}

type Adapter interface {
	Publish(ctx context.Context, account *models.SocialAccount, text string, media []models.MediaRef, opts Options) Outcome
}

// Adapters has one field per supported platform.
type Adapters struct {
	Facebook  Adapter
	Instagram Adapter
	Threads   Adapter
	Twitter   Adapter
	Telegram  Adapter
	YouTube   Adapter
}

type Registry struct {
	adapters map[models.Platform]Adapter
}

// NewRegistry fails if any platform is left without an adapter.
func NewRegistry(a Adapters) (*Registry, error) {
	adapters := map[models.Platform]Adapter{
		models.PlatformFacebook:  a.Facebook,
		models.PlatformInstagram: a.Instagram,
		models.PlatformThreads:   a.Threads,
		models.PlatformTwitter:   a.Twitter,
		models.PlatformTelegram:  a.Telegram,
		models.PlatformYouTube:   a.YouTube,
	}
	for _, p := range models.Platforms {
		if adapters[p] == nil {
			return nil, fmt.Errorf("no adapter configured for %s", p)
		}
	}
	return &Registry{adapters: adapters}, nil
}

func (r *Registry) Get(p models.Platform) Adapter {
	return r.adapters[p]
}

// Token is a refreshed credential pair in plain text.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenRefresher is implemented by adapters whose platform issues
// short-lived tokens.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, account *models.SocialAccount) (Token, error)
}
