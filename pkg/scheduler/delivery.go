package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// jobPayload is the typed view of RemarketingJob.Payload.
type jobPayload struct {
	ChatID    string `mapstructure:"chat_id"`
	BotToken  string `mapstructure:"bot_token"`
	Text      string `mapstructure:"text"`
	ParseMode string `mapstructure:"parse_mode"`
	PhotoURL  string `mapstructure:"photo_url"`
	Caption   string `mapstructure:"caption"`
	Buttons   []any  `mapstructure:"buttons"`
}

func decodePayload(raw map[string]any) (jobPayload, error) {
	var p jobPayload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(raw); err != nil {
		return p, err
	}
	return p, nil
}

// deliver sends one job through sender. Payload problems are reported as
// Unreachable so the job is dropped instead of retried.
func deliver(ctx context.Context, sender ports.MessageSender, job *domain.RemarketingJob) error {
	p, err := decodePayload(job.Payload)
	if err != nil {
		return ports.Unreachable(fmt.Errorf("decode payload: %w", err))
	}
	if p.ChatID == "" {
		return ports.Unreachable(errors.New("payload has no chat_id"))
	}
	target := ports.Target{ChatID: p.ChatID, BotToken: p.BotToken, ParseMode: p.ParseMode}
	p.Text = actions.RenderText(p.Text, p.ParseMode)
	p.Caption = actions.RenderText(p.Caption, p.ParseMode)

	switch {
	case p.PhotoURL != "":
		caption := p.Caption
		if caption == "" {
			caption = p.Text
		}
		return sender.SendPhoto(ctx, target, p.PhotoURL, caption)
	case len(p.Buttons) > 0:
		buttons, err := actions.DecodeButtons(p.Buttons)
		if err != nil {
			return ports.Unreachable(err)
		}
		return sender.SendButtons(ctx, target, p.Text, buttons)
	case p.Text != "":
		return sender.SendText(ctx, target, p.Text)
	default:
		return ports.Unreachable(errors.New("payload has nothing to send"))
	}
}
