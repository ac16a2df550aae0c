package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
	"resty.dev/v3"
)

const instagramBaseURL = "https://graph.instagram.com/v21.0"

// Instagram publishes through the content publishing API: one media
// container per item, an optional carousel container, then media_publish.
type Instagram struct {
	client     *resty.Client
	secretKey  []byte
	refreshURL string
	// PollInterval and PollAttempts bound the wait for video containers.
	PollInterval time.Duration
	PollAttempts int
}

func NewInstagram(secretKey, baseURL string) *Instagram {
	refreshURL := "https://graph.instagram.com/refresh_access_token"
	if baseURL == "" {
		baseURL = instagramBaseURL
	} else {
		refreshURL = strings.TrimRight(baseURL, "/") + "/refresh_access_token"
	}
	return &Instagram{
		client:       newClient(models.PlatformInstagram, baseURL),
		secretKey:    []byte(secretKey),
		refreshURL:   refreshURL,
		PollInterval: 5 * time.Second,
		PollAttempts: 24,
	}
}

type idResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id,omitempty"`
}

func (ig *Instagram) Publish(ctx context.Context, account *models.SocialAccount, text string, media []models.MediaRef, opts Options) Outcome {
	if len(media) == 0 {
		return Failed("instagram requires at least one media item")
	}

	token, err := decryptToken(account, ig.secretKey)
	if err != nil {
		return Failed("%s", err.Error())
	}

	var containerID string
	if len(media) == 1 {
		containerID, err = ig.createContainer(ctx, account.AccountID, token, media[0], text, opts.Location, false)
	} else {
		containerID, err = ig.createCarousel(ctx, account.AccountID, token, media, text, opts.Location)
	}
	if err != nil {
		logFailure(models.PlatformInstagram, account, err.Error())
		return Failed("%s", err.Error())
	}

	mediaID, err := ig.publishContainer(ctx, account.AccountID, token, containerID)
	if err != nil {
		logFailure(models.PlatformInstagram, account, err.Error())
		return Failed("%s", err.Error())
	}
	return Published(mediaID)
}

func (ig *Instagram) createContainer(ctx context.Context, accountID, token string, item models.MediaRef, caption, location string, carouselItem bool) (string, error) {
	payload := map[string]any{
		"access_token": token,
	}
	if item.IsVideo() {
		payload["media_type"] = "REELS"
		payload["video_url"] = item.Location
	} else {
		payload["image_url"] = item.Location
	}
	if carouselItem {
		payload["is_carousel_item"] = true
		if item.IsVideo() {
			payload["media_type"] = "VIDEO"
		}
	} else {
		payload["caption"] = caption
		if location != "" {
			payload["location_id"] = location
		}
	}

	id, err := ig.post(ctx, "/"+accountID+"/media", payload)
	if err != nil {
		return "", err
	}
	if item.IsVideo() {
		if err := ig.waitForContainer(ctx, id, token); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (ig *Instagram) createCarousel(ctx context.Context, accountID, token string, media []models.MediaRef, caption, location string) (string, error) {
	children := make([]string, 0, len(media))
	for _, item := range media {
		id, err := ig.createContainer(ctx, accountID, token, item, "", "", true)
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	payload := map[string]any{
		"media_type":   "CAROUSEL",
		"caption":      caption,
		"children":     children,
		"access_token": token,
	}
	if location != "" {
		payload["location_id"] = location
	}
	return ig.post(ctx, "/"+accountID+"/media", payload)
}

func (ig *Instagram) publishContainer(ctx context.Context, accountID, token, containerID string) (string, error) {
	return ig.post(ctx, "/"+accountID+"/media_publish", map[string]any{
		"creation_id":  containerID,
		"access_token": token,
	})
}

// waitForContainer polls a video container until instagram has fetched and
// processed it.
func (ig *Instagram) waitForContainer(ctx context.Context, containerID, token string) error {
	for i := 0; i < ig.PollAttempts; i++ {
		var status struct {
			StatusCode string `json:"status_code"`
		}
		var apiErr graphError
		resp, err := ig.client.R().WithContext(ctx).
			SetQueryParam("fields", "status_code").
			SetQueryParam("access_token", token).
			SetResult(&status).
			SetError(&apiErr).
			Get("/" + containerID)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return errors.New(describe(resp, &apiErr))
		}

		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("media container %s ended in status %s", containerID, status.StatusCode)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ig.PollInterval):
		}
	}
	return fmt.Errorf("media container %s was not ready in time", containerID)
}

func (ig *Instagram) post(ctx context.Context, path string, payload map[string]any) (string, error) {
	var result idResponse
	var apiErr graphError
	resp, err := ig.client.R().WithContext(ctx).
		SetBody(payload).
		SetResult(&result).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", errors.New(describe(resp, &apiErr))
	}
	if result.ID == "" {
		return "", errors.New("no media id returned from instagram")
	}
	return result.ID, nil
}

// RefreshToken extends a long-lived instagram token. Instagram uses the
// access token itself as the refresh credential.
func (ig *Instagram) RefreshToken(ctx context.Context, account *models.SocialAccount) (Token, error) {
	current, err := decryptToken(account, ig.secretKey)
	if err != nil {
		return Token{}, err
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	var apiErr graphError
	resp, err := ig.client.R().WithContext(ctx).
		SetQueryParam("grant_type", "ig_refresh_token").
		SetQueryParam("access_token", current).
		SetResult(&result).
		SetError(&apiErr).
		Get(ig.refreshURL)
	if err != nil {
		return Token{}, err
	}
	if resp.IsError() {
		return Token{}, errors.New(describe(resp, &apiErr))
	}

	return Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}
