package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/maheshrc27/publishflow/internal/models"
	"resty.dev/v3"
)

const (
	twitterBaseURL   = "https://api.x.com"
	twitterMaxImages = 4
)

// Twitter publishes through the X API v2 with a user access token.
type Twitter struct {
	client    *resty.Client
	secretKey []byte
}

func NewTwitter(secretKey, baseURL string) *Twitter {
	if baseURL == "" {
		baseURL = twitterBaseURL
	}
	return &Twitter{
		client:    newClient(models.PlatformTwitter, baseURL),
		secretKey: []byte(secretKey),
	}
}

type twitterError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *twitterError) message(resp *resty.Response) string {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return "rate limited"
	}
	switch {
	case e.Detail != "":
		return e.Detail
	case len(e.Errors) > 0:
		return e.Errors[0].Message
	case e.Title != "":
		return e.Title
	}
	return fmt.Sprintf("unexpected status code %d", resp.StatusCode())
}

func (tw *Twitter) Publish(ctx context.Context, account *models.SocialAccount, text string, media []models.MediaRef, opts Options) Outcome {
	if len(media) > twitterMaxImages {
		return Failed("twitter accepts at most %d media items", twitterMaxImages)
	}

	token, err := decryptToken(account, tw.secretKey)
	if err != nil {
		return Failed("%s", err.Error())
	}

	mediaIDs := make([]string, 0, len(media))
	for _, item := range media {
		if item.IsVideo() {
			return Failed("video uploads are not supported for twitter")
		}
		id, err := tw.upload(ctx, token, item)
		if err != nil {
			logFailure(models.PlatformTwitter, account, err.Error())
			return Failed("%s", err.Error())
		}
		mediaIDs = append(mediaIDs, id)
	}

	payload := map[string]any{
		"text": withLink(text, opts.Link),
	}
	if opts.ReplyToID != "" {
		payload["reply"] = map[string]string{"in_reply_to_tweet_id": opts.ReplyToID}
	}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string][]string{"media_ids": mediaIDs}
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	var apiErr twitterError
	resp, err := tw.client.R().WithContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		SetResult(&result).
		SetError(&apiErr).
		Post("/2/tweets")
	if err != nil {
		return Failed("%s", err.Error())
	}
	if resp.IsError() {
		reason := apiErr.message(resp)
		logFailure(models.PlatformTwitter, account, reason)
		return Failed("%s", reason)
	}
	if result.Data.ID == "" {
		return Failed("no tweet id returned from twitter")
	}
	return Published(result.Data.ID)
}

func (tw *Twitter) upload(ctx context.Context, token string, item models.MediaRef) (string, error) {
	download, err := tw.client.R().WithContext(ctx).Get(item.Location)
	if err != nil {
		return "", err
	}
	if download.IsError() {
		return "", fmt.Errorf("unable to fetch media: status %d", download.StatusCode())
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	var apiErr twitterError
	resp, err := tw.client.R().WithContext(ctx).
		SetAuthToken(token).
		SetFormData(map[string]string{"media_category": "tweet_image"}).
		SetFileReader("media", "media", bytes.NewReader([]byte(download.String()))).
		SetResult(&result).
		SetError(&apiErr).
		Post("/2/media/upload")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", errors.New(apiErr.message(resp))
	}
	if result.Data.ID == "" {
		return "", errors.New("no media id returned from twitter")
	}
	return result.Data.ID, nil
}
