// Package telegram adapts the Telegram Bot API to botflow: a
// ports.MessageSender for outbound messages and a webhook update converter
// for inbound ones.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/ports"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultTimeout bounds every Bot API request.
const DefaultTimeout = 10 * time.Second

// Sender implements ports.MessageSender. Bot clients are created lazily, one
// per token, so a single sender serves every bot of every tenant.
type Sender struct {
	defaultToken string
	endpoint     string
	client       *http.Client
	logger       *slog.Logger

	mu   sync.Mutex
	bots map[string]*tgbotapi.BotAPI
}

type Option func(*Sender)

// WithDefaultToken is used when a target carries no bot token.
func WithDefaultToken(token string) Option {
	return func(s *Sender) {
		s.defaultToken = token
	}
}

// WithEndpoint overrides the Bot API endpoint format (bot token, method).
func WithEndpoint(endpoint string) Option {
	return func(s *Sender) {
		s.endpoint = endpoint
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSender creates a Telegram sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logging.NewNop(),
		bots:     make(map[string]*tgbotapi.BotAPI),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) bot(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		token = s.defaultToken
	}
	if token == "" {
		return nil, errors.New("telegram: no bot token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bot, ok := s.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, s.endpoint, s.client)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize bot: %w", classify(err))
	}
	s.logger.Debug("telegram bot authorized", "username", bot.Self.UserName)
	s.bots[token] = bot
	return bot, nil
}

// SendText sends a plain or rich text message.
func (s *Sender) SendText(ctx context.Context, target ports.Target, text string) error {
	msg, err := newMessage(target.ChatID, text)
	if err != nil {
		return err
	}
	msg.ParseMode = target.ParseMode
	return s.send(ctx, target, msg)
}

// SendButtons sends text with an inline keyboard, one button per row.
func (s *Sender) SendButtons(ctx context.Context, target ports.Target, text string, buttons []ports.Button) error {
	msg, err := newMessage(target.ChatID, text)
	if err != nil {
		return err
	}
	msg.ParseMode = target.ParseMode
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		if b.URL != "" {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL)))
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Value)))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	return s.send(ctx, target, msg)
}

// SendPhoto sends an image by URL with an optional caption.
func (s *Sender) SendPhoto(ctx context.Context, target ports.Target, photoURL, caption string) error {
	id, channel, err := parseChat(target.ChatID)
	if err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(id, tgbotapi.FileURL(photoURL))
	photo.ChannelUsername = channel
	photo.Caption = caption
	photo.ParseMode = target.ParseMode
	return s.send(ctx, target, photo)
}

// send performs the request. The Bot API client has no context support, so
// ctx is checked up front and the HTTP client timeout bounds the call.
func (s *Sender) send(ctx context.Context, target ports.Target, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := s.bot(target.BotToken)
	if err != nil {
		return err
	}
	if _, err := bot.Send(c); err != nil {
		return classify(err)
	}
	return nil
}

func newMessage(chatID, text string) (tgbotapi.MessageConfig, error) {
	id, channel, err := parseChat(chatID)
	if err != nil {
		return tgbotapi.MessageConfig{}, err
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.ChannelUsername = channel
	return msg, nil
}

// parseChat accepts numeric chat ids and @channel usernames.
func parseChat(chatID string) (int64, string, error) {
	if strings.HasPrefix(chatID, "@") && len(chatID) > 1 {
		return 0, chatID, nil
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return 0, "", ports.Unreachable(fmt.Errorf("telegram: invalid chat id %q", chatID))
	}
	return id, "", nil
}

// classify maps Bot API errors onto the send-error taxonomy.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		retry := time.Duration(apiErr.RetryAfter) * time.Second
		return ports.RateLimited(retry, err)
	case apiErr.Code == http.StatusForbidden:
		return ports.Blocked(err)
	case apiErr.Code == http.StatusBadRequest && isUnreachable(apiErr.Message):
		return ports.Unreachable(err)
	default:
		return err
	}
}

func isUnreachable(description string) bool {
	d := strings.ToLower(description)
	for _, marker := range []string{"chat not found", "user not found", "peer_id_invalid", "chat_id is empty"} {
		if strings.Contains(d, marker) {
			return true
		}
	}
	return false
}
