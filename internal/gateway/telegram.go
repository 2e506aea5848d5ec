package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/d60-Lab/district-feed/pkg/logger"
)

// Telegram limits for message text and media captions, in characters.
const (
	MaxTextLength    = 4096
	MaxCaptionLength = 1024
)

type TelegramOptions struct {
	Token          string
	RequestTimeout time.Duration
	PollTimeout    int
}

// Telegram implements Gateway on the Bot API with long polling.
type Telegram struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
}

func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	// long polling holds the request open for PollTimeout seconds
	client := &http.Client{Timeout: opts.RequestTimeout + time.Duration(opts.PollTimeout)*time.Second}

	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return &Telegram{api: api, pollTimeout: opts.PollTimeout}, nil
}

func (t *Telegram) SendText(ctx context.Context, recipient int64, text string, buttons []Button) error {
	msg := tgbotapi.NewMessage(recipient, Truncate(text, MaxTextLength))
	if kb := keyboard(buttons); kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("sending text to %d: %w", recipient, err)
	}
	return nil
}

func (t *Telegram) SendMedia(ctx context.Context, recipient int64, mediaRef, caption string, buttons []Button) error {
	photo := tgbotapi.NewPhoto(recipient, tgbotapi.FileID(mediaRef))
	photo.Caption = Truncate(caption, MaxCaptionLength)
	if kb := keyboard(buttons); kb != nil {
		photo.ReplyMarkup = *kb
	}
	if _, err := t.api.Send(photo); err != nil {
		return fmt.Errorf("sending photo to %d: %w", recipient, err)
	}
	return nil
}

func (t *Telegram) ResolveMediaURL(ctx context.Context, mediaRef string) (string, error) {
	if mediaRef == "" {
		return "", ErrMediaUnavailable
	}
	url, err := t.api.GetFileDirectURL(mediaRef)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	return url, nil
}

func (t *Telegram) AnswerAction(ctx context.Context, invocationID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(invocationID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(invocationID, text)
	}
	if _, err := t.api.Request(cb); err != nil {
		return fmt.Errorf("answering callback %s: %w", invocationID, err)
	}
	return nil
}

// Events polls for updates until ctx is done. The channel is closed afterwards.
func (t *Telegram) Events(ctx context.Context) <-chan Event {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)

	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				ev, ok := toEvent(update)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					t.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

func toEvent(update tgbotapi.Update) (Event, bool) {
	if cq := update.CallbackQuery; cq != nil && cq.From != nil {
		return ActionInvocation{From: identity(cq.From), ID: cq.ID, Token: cq.Data}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil, false
	}
	from := identity(msg.From)

	switch {
	case len(msg.Photo) > 0:
		// sizes are ordered smallest first
		largest := msg.Photo[len(msg.Photo)-1]
		return MediaMessage{From: from, Caption: msg.Caption, MediaRef: largest.FileID}, true
	case msg.IsCommand():
		return Command{From: from, Name: strings.ToLower(msg.Command()), Args: strings.TrimSpace(msg.CommandArguments())}, true
	case msg.Text != "":
		return TextMessage{From: from, Text: msg.Text}, true
	}
	return nil, false
}

func identity(u *tgbotapi.User) Identity {
	return Identity{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Username: u.UserName}
}

func keyboard(buttons []Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		if b.URL != "" {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}

// Truncate cuts s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
