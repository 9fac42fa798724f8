// Package discord adapts Discord's REST API to ports.MessageSender. Targets
// are channel ids; buttons become message components and photos image embeds.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/bwmarrin/discordgo"
)

// Provider is the provider name Discord senders are registered under.
const Provider = "discord"

// DefaultTimeout bounds every REST request.
const DefaultTimeout = 10 * time.Second

// Discord JSON error codes that mean the message can never be delivered.
const (
	codeUnknownChannel     = 10003
	codeUnknownUser        = 10013
	codeCannotMessageUser  = 50007
	codeMissingAccess      = 50001
	maxButtonsPerActionRow = 5
)

// Sender implements ports.MessageSender with one REST session per bot token.
type Sender struct {
	defaultToken string
	client       *http.Client
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*discordgo.Session
}

type Option func(*Sender)

// WithDefaultToken is used when a target carries no bot token.
func WithDefaultToken(token string) Option {
	return func(s *Sender) {
		s.defaultToken = token
	}
}

// WithHTTPClient replaces the HTTP client of every session.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
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

// NewSender creates a Discord sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logging.NewNop(),
		sessions: make(map[string]*discordgo.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) session(token string) (*discordgo.Session, error) {
	if token == "" {
		token = s.defaultToken
	}
	if token == "" {
		return nil, errors.New("discord: no bot token")
	}
	token = strings.TrimPrefix(token, "Bot ")

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		return sess, nil
	}
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	sess.Client = s.client
	// Rate limits are surfaced so the scheduler can reschedule instead of
	// sleeping inside a delivery.
	sess.ShouldRetryOnRateLimit = false
	s.sessions[token] = sess
	return sess, nil
}

// SendText posts a message to a channel.
func (s *Sender) SendText(ctx context.Context, target ports.Target, text string) error {
	return s.send(ctx, target, &discordgo.MessageSend{Content: text})
}

// SendButtons posts a message with button components, five per row.
func (s *Sender) SendButtons(ctx context.Context, target ports.Target, text string, buttons []ports.Button) error {
	var rows []discordgo.MessageComponent
	var row discordgo.ActionsRow
	for _, b := range buttons {
		btn := discordgo.Button{Label: b.Label, Style: discordgo.PrimaryButton, CustomID: b.Value}
		if b.URL != "" {
			btn = discordgo.Button{Label: b.Label, Style: discordgo.LinkButton, URL: b.URL}
		}
		row.Components = append(row.Components, btn)
		if len(row.Components) == maxButtonsPerActionRow {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}
	return s.send(ctx, target, &discordgo.MessageSend{Content: text, Components: rows})
}

// SendPhoto posts an image embed.
func (s *Sender) SendPhoto(ctx context.Context, target ports.Target, photoURL, caption string) error {
	return s.send(ctx, target, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Description: caption,
			Image:       &discordgo.MessageEmbedImage{URL: photoURL},
		}},
	})
}

func (s *Sender) send(ctx context.Context, target ports.Target, msg *discordgo.MessageSend) error {
	if target.ChatID == "" {
		return ports.Unreachable(errors.New("discord: empty channel id"))
	}
	sess, err := s.session(target.BotToken)
	if err != nil {
		return err
	}
	if _, err := sess.ChannelMessageSendComplex(target.ChatID, msg, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps REST failures onto the send-error taxonomy.
func classify(err error) error {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		var wait time.Duration
		if rl.RateLimit != nil && rl.TooManyRequests != nil {
			wait = rl.RetryAfter
		}
		return ports.RateLimited(wait, err)
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	code := 0
	if rest.Message != nil {
		code = rest.Message.Code
	}
	switch {
	case code == codeCannotMessageUser || code == codeMissingAccess:
		return ports.Blocked(err)
	case code == codeUnknownChannel || code == codeUnknownUser:
		return ports.Unreachable(err)
	case rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden:
		return ports.Blocked(err)
	case rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound:
		return ports.Unreachable(err)
	default:
		return err
	}
}
