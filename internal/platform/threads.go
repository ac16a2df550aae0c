package platform

import (
	"context"
	"errors"

	"github.com/maheshrc27/publishflow/internal/models"
	"resty.dev/v3"
)

const threadsBaseURL = "https://graph.threads.net/v1.0"

// Threads publishes to Meta's Threads. Replies are created by passing the
// parent post id as reply_to_id.
type Threads struct {
	client    *resty.Client
	secretKey []byte
}

func NewThreads(secretKey, baseURL string) *Threads {
	if baseURL == "" {
		baseURL = threadsBaseURL
	}
	return &Threads{
		client:    newClient(models.PlatformThreads, baseURL),
		secretKey: []byte(secretKey),
	}
}

func (t *Threads) Publish(ctx context.Context, account *models.SocialAccount, text string, media []models.MediaRef, opts Options) Outcome {
	token, err := decryptToken(account, t.secretKey)
	if err != nil {
		return Failed("%s", err.Error())
	}

	text = withLink(text, opts.Link)

	var containerID string
	switch len(media) {
	case 0:
		containerID, err = t.container(ctx, account.AccountID, token, map[string]any{
			"media_type": "TEXT",
			"text":       text,
		}, opts.ReplyToID)
	case 1:
		containerID, err = t.container(ctx, account.AccountID, token, t.mediaPayload(media[0], text), opts.ReplyToID)
	default:
		children := make([]string, 0, len(media))
		for _, item := range media {
			payload := t.mediaPayload(item, "")
			payload["is_carousel_item"] = true
			var id string
			id, err = t.container(ctx, account.AccountID, token, payload, "")
			if err != nil {
				break
			}
			children = append(children, id)
		}
		if err == nil {
			containerID, err = t.container(ctx, account.AccountID, token, map[string]any{
				"media_type": "CAROUSEL",
				"children":   children,
				"text":       text,
			}, opts.ReplyToID)
		}
	}
	if err != nil {
		logFailure(models.PlatformThreads, account, err.Error())
		return Failed("%s", err.Error())
	}

	id, err := t.post(ctx, "/"+account.AccountID+"/threads_publish", map[string]any{
		"creation_id":  containerID,
		"access_token": token,
	})
	if err != nil {
		logFailure(models.PlatformThreads, account, err.Error())
		return Failed("%s", err.Error())
	}
	return Published(id)
}

func (t *Threads) mediaPayload(item models.MediaRef, text string) map[string]any {
	payload := map[string]any{}
	if item.IsVideo() {
		payload["media_type"] = "VIDEO"
		payload["video_url"] = item.Location
	} else {
		payload["media_type"] = "IMAGE"
		payload["image_url"] = item.Location
	}
	if text != "" {
		payload["text"] = text
	}
	return payload
}

func (t *Threads) container(ctx context.Context, userID, token string, payload map[string]any, replyTo string) (string, error) {
	payload["access_token"] = token
	if replyTo != "" {
		payload["reply_to_id"] = replyTo
	}
	return t.post(ctx, "/"+userID+"/threads", payload)
}

func (t *Threads) post(ctx context.Context, path string, payload map[string]any) (string, error) {
	var result idResponse
	var apiErr graphError
	resp, err := t.client.R().WithContext(ctx).
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
		return "", errors.New("no id returned from threads")
	}
	return result.ID, nil
}
