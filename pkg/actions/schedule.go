package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
)

type scheduleParams struct {
	Channel    string             `mapstructure:"channel"`
	CampaignID string             `mapstructure:"campaign_id"`
	Delay      time.Duration      `mapstructure:"delay"`
	At         string             `mapstructure:"at"`
	Text       string             `mapstructure:"text"`
	PhotoURL   string             `mapstructure:"photo_url"`
	Buttons    []any              `mapstructure:"buttons"`
	Recurrence *domain.Recurrence `mapstructure:"recurrence"`
	SaveAs     string             `mapstructure:"save_as"`
}

// scheduleJob hands an outbound message for the current user to the scheduler.
// Either "delay" (Go duration) or "at" (RFC 3339) picks the fire time;
// neither means "as soon as possible".
func (a *Actions) scheduleJob(ctx context.Context, uctx *domain.UniversalContext, params map[string]any) domain.ActionResult {
	var p scheduleParams
	if err := decodeParams(params, &p); err != nil {
		return domain.Fail(err)
	}
	if p.Text == "" && p.PhotoURL == "" {
		return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, "schedule_job requires text or photo_url", nil, nil))
	}

	when := a.now().UTC().Add(p.Delay)
	if p.At != "" {
		at, err := time.Parse(time.RFC3339, p.At)
		if err != nil {
			return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, fmt.Sprintf("schedule_job: invalid at %q", p.At), err, nil))
		}
		when = at.UTC()
	}

	channel := p.Channel
	if channel == "" {
		channel = uctx.Provider
	}
	chatID := uctx.ChatID
	if chatID == "" {
		chatID = uctx.UserID
	}

	payload := map[string]any{
		"chat_id":   chatID,
		"user_id":   uctx.UserID,
		"bot_id":    uctx.BotID,
		"bot_token": uctx.BotToken,
	}
	if p.Text != "" {
		payload["text"] = p.Text
	}
	if p.PhotoURL != "" {
		payload["photo_url"] = p.PhotoURL
	}
	if len(p.Buttons) > 0 {
		payload["buttons"] = p.Buttons
	}

	res, err := a.scheduler.Schedule(ctx, &domain.RemarketingJob{
		TenantID:     uctx.TenantID,
		CampaignID:   p.CampaignID,
		Channel:      channel,
		Payload:      payload,
		ScheduledFor: when,
		Recurrence:   p.Recurrence,
	})
	if err != nil {
		return domain.Fail(domain.NewError(domain.ErrStore, "schedule_job failed", err, nil))
	}

	if p.SaveAs == "" {
		return domain.Ok(nil)
	}
	return domain.Ok(map[string]any{p.SaveAs: res.JobID})
}
