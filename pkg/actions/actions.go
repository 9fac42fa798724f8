package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/aretw0/botflow/pkg/registry"
)

// Built-in action names.
const (
	SendMessage  = "send_message"
	SendButtons  = "send_buttons"
	SendPhoto    = "send_photo"
	CollectInput = "collect_input"
	Condition    = "condition"
	SetVariable  = "set_variable"
	ScheduleJob  = "schedule_job"
)

// DefaultSendTimeout bounds a single provider call.
const DefaultSendTimeout = 10 * time.Second

// JobScheduler is the part of the scheduler the schedule_job action needs.
type JobScheduler interface {
	Schedule(ctx context.Context, job *domain.RemarketingJob) (domain.ScheduleResult, error)
}

// Actions holds the dependencies shared by the built-in handlers.
type Actions struct {
	senders   Senders
	scheduler JobScheduler
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// Option configures Actions.
type Option func(*Actions)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Actions) {
		a.logger = logger
	}
}

// WithSendTimeout bounds every provider call.
func WithSendTimeout(d time.Duration) Option {
	return func(a *Actions) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithScheduler enables the schedule_job action.
func WithScheduler(s JobScheduler) Option {
	return func(a *Actions) {
		a.scheduler = s
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Actions) {
		a.now = now
	}
}

// New creates the built-in action set.
func New(senders Senders, opts ...Option) *Actions {
	a := &Actions{
		senders: senders,
		logger:  logging.NewNop(),
		timeout: DefaultSendTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds every built-in action to reg.
// schedule_job is only registered when a scheduler was configured.
func (a *Actions) Register(reg *registry.Registry) {
	reg.Register(SendMessage, a.sendMessage)
	reg.Register(SendButtons, a.sendButtons)
	reg.Register(SendPhoto, a.sendPhoto)
	reg.Register(CollectInput, a.collectInput)
	reg.Register(Condition, EvaluateCondition)
	reg.Register(SetVariable, SetVariables)
	if a.scheduler != nil {
		reg.Register(ScheduleJob, a.scheduleJob)
	}
}

func targetOf(uctx *domain.UniversalContext, parseMode string) ports.Target {
	chatID := uctx.ChatID
	if chatID == "" {
		chatID = uctx.UserID
	}
	return ports.Target{ChatID: chatID, BotToken: uctx.BotToken, ParseMode: parseMode}
}

// send runs fn against the provider's sender under the send timeout and
// classifies a failure as a provider error.
func (a *Actions) send(ctx context.Context, action string, uctx *domain.UniversalContext, fn func(context.Context, ports.MessageSender) error) error {
	sender, err := a.senders.Lookup(uctx.Provider)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := fn(ctx, sender); err != nil {
		code, _ := ports.ClassifySendError(err)
		a.logger.Warn("provider send failed",
			"action", action,
			"provider", uctx.Provider,
			"tenant", uctx.TenantID,
			"code", code,
			"err", err,
		)
		return domain.NewError(domain.ErrProvider,
			fmt.Sprintf("%s via %s failed", action, uctx.Provider), err,
			map[string]any{"provider": uctx.Provider, "send_code": code})
	}
	return nil
}

type messageParams struct {
	Text      string `mapstructure:"text"`
	ParseMode string `mapstructure:"parse_mode"`
}

func (p messageParams) render() string {
	return RenderText(p.Text, p.ParseMode)
}

func (a *Actions) sendMessage(ctx context.Context, uctx *domain.UniversalContext, params map[string]any) domain.ActionResult {
	var p messageParams
	if err := decodeParams(params, &p); err != nil {
		return domain.Fail(err)
	}
	if p.Text == "" {
		return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, "send_message requires text", nil, nil))
	}
	text := p.render()
	err := a.send(ctx, SendMessage, uctx, func(ctx context.Context, s ports.MessageSender) error {
		return s.SendText(ctx, targetOf(uctx, p.ParseMode), text)
	})
	if err != nil {
		return domain.Fail(err)
	}
	return domain.Ok(nil)
}

type buttonParams struct {
	messageParams `mapstructure:",squash"`
	Buttons       []any `mapstructure:"buttons"`
}

// DecodeButtons accepts either plain strings (label doubles as value) or
// {label, value, url} objects.
func DecodeButtons(raw []any) ([]ports.Button, error) {
	out := make([]ports.Button, 0, len(raw))
	for i, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, ports.Button{Label: v, Value: v})
		case map[string]any:
			var b ports.Button
			if err := decodeParams(v, &b); err != nil {
				return nil, err
			}
			if b.Label == "" {
				return nil, domain.NewError(domain.ErrInvalidBlueprint, fmt.Sprintf("button %d has no label", i), nil, nil)
			}
			if b.Value == "" && b.URL == "" {
				b.Value = b.Label
			}
			out = append(out, b)
		default:
			return nil, domain.NewError(domain.ErrInvalidBlueprint, fmt.Sprintf("button %d has unsupported type %T", i, item), nil, nil)
		}
	}
	return out, nil
}

func (a *Actions) sendButtons(ctx context.Context, uctx *domain.UniversalContext, params map[string]any) domain.ActionResult {
	var p buttonParams
	if err := decodeParams(params, &p); err != nil {
		return domain.Fail(err)
	}
	buttons, err := DecodeButtons(p.Buttons)
	if err != nil {
		return domain.Fail(err)
	}
	if len(buttons) == 0 {
		return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, "send_buttons requires at least one button", nil, nil))
	}
	text := p.render()
	err = a.send(ctx, SendButtons, uctx, func(ctx context.Context, s ports.MessageSender) error {
		return s.SendButtons(ctx, targetOf(uctx, p.ParseMode), text, buttons)
	})
	if err != nil {
		return domain.Fail(err)
	}
	return domain.Ok(nil)
}

type photoParams struct {
	URL      string `mapstructure:"url"`
	PhotoURL string `mapstructure:"photo_url"`
	Caption  string `mapstructure:"caption"`
}

func (a *Actions) sendPhoto(ctx context.Context, uctx *domain.UniversalContext, params map[string]any) domain.ActionResult {
	var p photoParams
	if err := decodeParams(params, &p); err != nil {
		return domain.Fail(err)
	}
	url := p.URL
	if url == "" {
		url = p.PhotoURL
	}
	if url == "" {
		return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, "send_photo requires url", nil, nil))
	}
	err := a.send(ctx, SendPhoto, uctx, func(ctx context.Context, s ports.MessageSender) error {
		return s.SendPhoto(ctx, targetOf(uctx, ""), url, p.Caption)
	})
	if err != nil {
		return domain.Fail(err)
	}
	return domain.Ok(nil)
}
