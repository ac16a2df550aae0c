package platform

import (
	"context"
	"net/http"
	"testing"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTwitterReply(t *testing.T) {
	rec, srv := newRecorder(map[string]reply{
		"/2/tweets": {http.StatusCreated, `{"data":{"id":"1850","text":"two"}}`},
	})
	defer srv.Close()

	tw := NewTwitter(testSecret, srv.URL)
	account := testAccount(t, models.PlatformTwitter, "42", "x-token")

	out := tw.Publish(context.Background(), account, "two", nil, Options{ReplyToID: "1849"})

	assert.True(t, out.Success, out.Error)
	assert.Equal(t, "1850", out.ExternalID)
	body := rec.last("/2/tweets").Body
	assert.Equal(t, "two", body["text"])
	assert.Equal(t, map[string]any{"in_reply_to_tweet_id": "1849"}, body["reply"])
}

func TestTwitterRateLimit(t *testing.T) {
	_, srv := newRecorder(map[string]reply{
		"/2/tweets": {http.StatusTooManyRequests, `{"title":"Too Many Requests","detail":"Too Many Requests","status":429}`},
	})
	defer srv.Close()

	tw := NewTwitter(testSecret, srv.URL)
	account := testAccount(t, models.PlatformTwitter, "42", "x-token")

	out := tw.Publish(context.Background(), account, "hello", nil, Options{})

	assert.False(t, out.Success)
	assert.Equal(t, "rate limited", out.Error)
}

func TestTwitterRejectsVideo(t *testing.T) {
	tw := NewTwitter(testSecret, "http://127.0.0.1:1")
	account := testAccount(t, models.PlatformTwitter, "42", "x-token")

	out := tw.Publish(context.Background(), account, "clip", []models.MediaRef{{Type: "video/mp4", Location: "https://cdn/v.mp4"}}, Options{})

	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "video")
}

func TestTwitterUploadsImages(t *testing.T) {
	rec, srv := newRecorder(map[string]reply{
		"/media/a.png":    {http.StatusOK, `{}`},
		"/2/media/upload": {http.StatusOK, `{"data":{"id":"m-1"}}`},
		"/2/tweets":       {http.StatusCreated, `{"data":{"id":"t-1"}}`},
	})
	defer srv.Close()

	tw := NewTwitter(testSecret, srv.URL)
	account := testAccount(t, models.PlatformTwitter, "42", "x-token")

	out := tw.Publish(context.Background(), account, "pic", []models.MediaRef{{Type: "image/png", Location: srv.URL + "/media/a.png"}}, Options{})

	assert.True(t, out.Success, out.Error)
	assert.Equal(t, []string{"/media/a.png", "/2/media/upload", "/2/tweets"}, rec.paths())
	assert.Equal(t, map[string]any{"media_ids": []any{"m-1"}}, rec.last("/2/tweets").Body["media"])
}
