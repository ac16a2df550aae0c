package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeTitleLimit = 100

// YouTube uploads a single video per delivery.
type YouTube struct {
	secretKey []byte
	oauth     *oauth2.Config
	endpoint  string
}

func NewYouTube(secretKey, clientID, clientSecret, endpoint string) *YouTube {
	return &YouTube{
		secretKey: []byte(secretKey),
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{youtube.YoutubeUploadScope},
			Endpoint:     google.Endpoint,
		},
		endpoint: endpoint,
	}
}

func (y *YouTube) Publish(ctx context.Context, account *models.SocialAccount, text string, media []models.MediaRef, opts Options) Outcome {
	if len(media) != 1 || !media[0].IsVideo() {
		return Failed("youtube requires exactly one video")
	}

	token, err := decryptToken(account, y.secretKey)
	if err != nil {
		return Failed("%s", err.Error())
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	serviceOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if y.endpoint != "" {
		serviceOpts = append(serviceOpts, option.WithEndpoint(y.endpoint))
	}
	service, err := youtube.NewService(ctx, serviceOpts...)
	if err != nil {
		return Failed("unable to create youtube client: %s", err.Error())
	}

	body, err := openVideo(ctx, media[0].Location)
	if err != nil {
		logFailure(models.PlatformYouTube, account, err.Error())
		return Failed("%s", err.Error())
	}
	defer body.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(opts.Title, text),
			Description: withLink(text, opts.Link),
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	response, err := service.Videos.Insert([]string{"snippet", "status"}, video).Media(body).Context(ctx).Do()
	if err != nil {
		logFailure(models.PlatformYouTube, account, err.Error())
		return Failed("%s", err.Error())
	}
	return Published(response.Id)
}

// openVideo streams the video from its resolved URL.
func openVideo(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading video: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected response status while downloading video: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func videoTitle(title, text string) string {
	if title == "" {
		title = strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	}
	if title == "" {
		title = "Untitled"
	}
	if utf8.RuneCountInString(title) > youtubeTitleLimit {
		title = string([]rune(title)[:youtubeTitleLimit])
	}
	return title
}

// RefreshToken trades the stored refresh token for a new access token.
func (y *YouTube) RefreshToken(ctx context.Context, account *models.SocialAccount) (Token, error) {
	refresh, err := utils.Decrypt(account.RefreshToken, y.secretKey)
	if err != nil {
		return Token{}, err
	}

	token, err := y.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return Token{}, err
	}

	return Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}
