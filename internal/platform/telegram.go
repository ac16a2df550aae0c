package platform

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/maheshrc27/publishflow/internal/models"
)

const telegramCaptionLimit = 1024

// Telegram posts to a channel or group through a bot. The account's access
// token is the bot token and its account id is the chat id or @username.
type Telegram struct {
	secretKey []byte
	serverURL string
}

func NewTelegram(secretKey, serverURL string) *Telegram {
	return &Telegram{secretKey: []byte(secretKey), serverURL: serverURL}
}

func (t *Telegram) Publish(ctx context.Context, account *models.SocialAccount, text string, media []models.MediaRef, opts Options) Outcome {
	token, err := decryptToken(account, t.secretKey)
	if err != nil {
		return Failed("%s", err.Error())
	}

	var botOpts []tgbot.Option
	if t.serverURL != "" {
		botOpts = append(botOpts, tgbot.WithServerURL(t.serverURL))
	}
	b, err := tgbot.New(token, botOpts...)
	if err != nil {
		logFailure(models.PlatformTelegram, account, err.Error())
		return Failed("telegram bot unavailable: %s", err.Error())
	}

	text = withLink(text, opts.Link)
	chatID := telegramChatID(account.AccountID)

	var reply *tgmodels.ReplyParameters
	if opts.ReplyToID != "" {
		if id, err := strconv.Atoi(opts.ReplyToID); err == nil {
			reply = &tgmodels.ReplyParameters{MessageID: id}
		}
	}

	// Captions are capped, so long texts go out as a separate message after
	// the media.
	caption := text
	trailing := ""
	if len(media) > 0 && utf8.RuneCountInString(text) > telegramCaptionLimit {
		caption, trailing = "", text
	}

	var messageID int
	switch {
	case len(media) == 0:
		var msg *tgmodels.Message
		msg, err = b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:          chatID,
			Text:            text,
			ReplyParameters: reply,
		})
		if err == nil {
			messageID = msg.ID
		}
	case len(media) == 1 && media[0].IsVideo():
		var msg *tgmodels.Message
		msg, err = b.SendVideo(ctx, &tgbot.SendVideoParams{
			ChatID:          chatID,
			Video:           &tgmodels.InputFileString{Data: media[0].Location},
			Caption:         caption,
			ReplyParameters: reply,
		})
		if err == nil {
			messageID = msg.ID
		}
	case len(media) == 1:
		var msg *tgmodels.Message
		msg, err = b.SendPhoto(ctx, &tgbot.SendPhotoParams{
			ChatID:          chatID,
			Photo:           &tgmodels.InputFileString{Data: media[0].Location},
			Caption:         caption,
			ReplyParameters: reply,
		})
		if err == nil {
			messageID = msg.ID
		}
	default:
		var msgs []*tgmodels.Message
		msgs, err = b.SendMediaGroup(ctx, &tgbot.SendMediaGroupParams{
			ChatID:          chatID,
			Media:           telegramMediaGroup(media, caption),
			ReplyParameters: reply,
		})
		if err == nil && len(msgs) > 0 {
			messageID = msgs[0].ID
		}
	}
	if err != nil {
		logFailure(models.PlatformTelegram, account, err.Error())
		return Failed("%s", err.Error())
	}

	if trailing != "" {
		msg, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:          chatID,
			Text:            trailing,
			ReplyParameters: &tgmodels.ReplyParameters{MessageID: messageID},
		})
		if err != nil {
			logFailure(models.PlatformTelegram, account, err.Error())
			return Failed("media sent but text failed: %s", err.Error())
		}
		messageID = msg.ID
	}

	if messageID == 0 {
		return Failed("no message id returned from telegram")
	}
	return Published(fmt.Sprintf("%d", messageID))
}

func telegramChatID(accountID string) any {
	if id, err := strconv.ParseInt(accountID, 10, 64); err == nil {
		return id
	}
	return accountID
}

func telegramMediaGroup(media []models.MediaRef, caption string) []tgmodels.InputMedia {
	group := make([]tgmodels.InputMedia, 0, len(media))
	for i, item := range media {
		c := ""
		if i == 0 {
			c = caption
		}
		if item.IsVideo() {
			group = append(group, &tgmodels.InputMediaVideo{Media: item.Location, Caption: c})
		} else {
			group = append(group, &tgmodels.InputMediaPhoto{Media: item.Location, Caption: c})
		}
	}
	return group
}
