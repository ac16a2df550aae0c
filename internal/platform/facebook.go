package platform

import (
	"context"
	"errors"

	"github.com/maheshrc27/publishflow/internal/models"
	"resty.dev/v3"
)

const facebookBaseURL = "https://graph.facebook.com/v21.0"

// Facebook publishes to a page. The account id is the page id and the
// access token is a page token.
type Facebook struct {
	client    *resty.Client
	secretKey []byte
}

func NewFacebook(secretKey, baseURL string) *Facebook {
	if baseURL == "" {
		baseURL = facebookBaseURL
	}
	return &Facebook{
		client:    newClient(models.PlatformFacebook, baseURL),
		secretKey: []byte(secretKey),
	}
}

func (fb *Facebook) Publish(ctx context.Context, account *models.SocialAccount, text string, media []models.MediaRef, opts Options) Outcome {
	token, err := decryptToken(account, fb.secretKey)
	if err != nil {
		return Failed("%s", err.Error())
	}

	var id string
	switch {
	case len(media) == 1 && media[0].IsVideo():
		id, err = fb.post(ctx, "/"+account.AccountID+"/videos", map[string]any{
			"file_url":     media[0].Location,
			"description":  withLink(text, opts.Link),
			"title":        opts.Title,
			"access_token": token,
		})
	case len(media) == 1:
		id, err = fb.post(ctx, "/"+account.AccountID+"/photos", fb.withPlace(map[string]any{
			"url":          media[0].Location,
			"caption":      withLink(text, opts.Link),
			"access_token": token,
		}, opts))
	case len(media) > 1:
		id, err = fb.album(ctx, account.AccountID, token, text, media, opts)
	default:
		payload := map[string]any{
			"message":      text,
			"access_token": token,
		}
		if opts.Link != "" {
			payload["link"] = opts.Link
		}
		id, err = fb.post(ctx, "/"+account.AccountID+"/feed", fb.withPlace(payload, opts))
	}
	if err != nil {
		logFailure(models.PlatformFacebook, account, err.Error())
		return Failed("%s", err.Error())
	}
	return Published(id)
}

// album uploads every photo unpublished and attaches them to one feed post.
func (fb *Facebook) album(ctx context.Context, pageID, token, text string, media []models.MediaRef, opts Options) (string, error) {
	attached := make([]map[string]string, 0, len(media))
	for _, item := range media {
		if item.IsVideo() {
			return "", errors.New("facebook does not accept videos in multi-photo posts")
		}
		id, err := fb.post(ctx, "/"+pageID+"/photos", map[string]any{
			"url":          item.Location,
			"published":    false,
			"access_token": token,
		})
		if err != nil {
			return "", err
		}
		attached = append(attached, map[string]string{"media_fbid": id})
	}

	return fb.post(ctx, "/"+pageID+"/feed", fb.withPlace(map[string]any{
		"message":        withLink(text, opts.Link),
		"attached_media": attached,
		"access_token":   token,
	}, opts))
}

func (fb *Facebook) withPlace(payload map[string]any, opts Options) map[string]any {
	if opts.Location != "" {
		payload["place"] = opts.Location
	}
	return payload
}

func (fb *Facebook) post(ctx context.Context, path string, payload map[string]any) (string, error) {
	var result idResponse
	var apiErr graphError
	resp, err := fb.client.R().WithContext(ctx).
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
	// Photo uploads answer with both the photo id and the feed post id.
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", errors.New("no id returned from facebook")
	}
	return result.ID, nil
}
