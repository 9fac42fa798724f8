package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
)

// Membership keeps each bot's audience current: every user interaction adds
// the conversation's chat id, the address campaigns deliver to. Events
// without a chat id fall back to the user id, as direct messages do.
func Membership(store ports.MembershipStore) Subscriber {
	return SubscriberFunc(func(ctx context.Context, evt domain.DomainEvent) error {
		if evt.Type != domain.EventUserInteraction || evt.BotID == "" {
			return nil
		}
		chatID, _ := evt.Payload["chat_id"].(string)
		if chatID == "" {
			chatID, _ = evt.Payload["user_id"].(string)
		}
		if chatID == "" {
			return nil
		}
		if err := store.Add(ctx, evt.TenantID, evt.BotID, chatID); err != nil {
			return fmt.Errorf("membership add: %w", err)
		}
		return nil
	})
}

// Logger writes every event as a structured log line.
func Logger(logger *slog.Logger) Subscriber {
	return SubscriberFunc(func(ctx context.Context, evt domain.DomainEvent) error {
		level := slog.LevelDebug
		if evt.Type == domain.EventFlowError || evt.Type == domain.EventJobFailed {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "domain event",
			"type", evt.Type,
			"tenant", evt.TenantID,
			"bot_id", evt.BotID,
			"event_id", evt.ID,
			"payload", evt.Payload,
		)
		return nil
	})
}
