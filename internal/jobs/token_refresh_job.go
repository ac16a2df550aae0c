package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/platform"
	"github.com/maheshrc27/publishflow/internal/repository"
	"github.com/maheshrc27/publishflow/pkg/utils"
)

const refreshWindow = 30 * time.Minute

type TokenRefreshJob struct {
	sr         repository.SocialAccountRepository
	refreshers map[models.Platform]platform.TokenRefresher
	secretKey  []byte
	now        func() time.Time
}

func NewTokenRefreshJob(
	sr repository.SocialAccountRepository,
	secretKey string,
	refreshers map[models.Platform]platform.TokenRefresher) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:         sr,
		refreshers: refreshers,
		secretKey:  []byte(secretKey),
		now:        time.Now,
	}
}

// RefreshTokens renews the credentials of accounts expiring within the
// next 30 minutes.
func (c *TokenRefreshJob) RefreshTokens(ctx context.Context) {
	accounts, err := c.sr.ListExpiring(ctx, c.now().Add(refreshWindow))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		plat, _ := models.ParsePlatform(acc.Platform)
		refresher, ok := c.refreshers[plat]
		if !ok {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refresh(ctx, refresher, acc); err != nil {
				slog.Warn("unable to refresh token", "account_id", acc.ID, "platform", acc.Platform, "error", err)
			}
		}(acc)
	}
	wg.Wait()
}

func (c *TokenRefreshJob) refresh(ctx context.Context, refresher platform.TokenRefresher, acc *models.SocialAccount) error {
	token, err := refresher.RefreshToken(ctx, acc)
	if err != nil {
		return err
	}

	access, err := utils.Encrypt([]byte(token.AccessToken), c.secretKey)
	if err != nil {
		return err
	}
	var refresh string
	if token.RefreshToken != "" {
		refresh, err = utils.Encrypt([]byte(token.RefreshToken), c.secretKey)
		if err != nil {
			return err
		}
	}

	if err := c.sr.SetToken(ctx, acc.ID, access, refresh, token.ExpiresAt); err != nil {
		return err
	}
	slog.Info("token refreshed", "account_id", acc.ID, "platform", acc.Platform, "expires_at", token.ExpiresAt)
	return nil
}
