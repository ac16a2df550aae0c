package platform

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/publishflow/internal/metrics"
	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/pkg/utils"
	"resty.dev/v3"
)

var defaultTransport = &resty.TransportSettings{
	DialerTimeout:         5 * time.Second,
	DialerKeepAlive:       30 * time.Second,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   5 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 60 * time.Second,
}

func newClient(p models.Platform, baseURL string) *resty.Client {
	client := resty.NewWithTransportSettings(defaultTransport)
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.AddResponseMiddleware(latencyMiddleware(p))
	return client
}

func latencyMiddleware(p models.Platform) resty.ResponseMiddleware {
	return func(_ *resty.Client, response *resty.Response) error {
		metrics.PlatformAPILatency.WithLabelValues(
			string(p),
			response.Request.Method,
			fmt.Sprintf("%d", response.StatusCode()),
		).Observe(response.Duration().Seconds())
		return nil
	}
}

func decryptToken(account *models.SocialAccount, secretKey []byte) (string, error) {
	token, err := utils.Decrypt(account.AccessToken, secretKey)
	if err != nil {
		return "", fmt.Errorf("unable to decrypt access token for account %d", account.ID)
	}
	return token, nil
}

// graphError is the error envelope shared by the Meta Graph APIs.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func describe(resp *resty.Response, apiErr *graphError) string {
	if apiErr != nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return fmt.Sprintf("unexpected status code %d", resp.StatusCode())
}

// withLink appends link to text unless it already appears in it.
func withLink(text, link string) string {
	if link == "" || strings.Contains(text, link) {
		return text
	}
	if text == "" {
		return link
	}
	return text + "\n\n" + link
}

func logFailure(p models.Platform, account *models.SocialAccount, reason string) {
	slog.Warn("platform publish failed", "platform", p, "account_id", account.ID, "error", reason)
}
