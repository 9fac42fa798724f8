package redis

import (
	"context"
	"fmt"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/bytedance/sonic"
	backend "github.com/redis/go-redis/v9"
)

// EventStream appends domain events to a capped Redis stream per tenant, for
// consumers living outside this process. It is an events.Subscriber.
type EventStream struct {
	client *backend.Client
	prefix string
	maxLen int64
}

// NewEventStream creates a stream sink keeping roughly maxLen entries per tenant.
func NewEventStream(client *backend.Client, prefix string, maxLen int64) *EventStream {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &EventStream{client: client, prefix: prefix, maxLen: maxLen}
}

// StreamKey returns the stream holding a tenant's events.
func (s *EventStream) StreamKey(tenantID string) string {
	return s.prefix + "events:" + tenantID
}

// Handle appends evt to its tenant stream.
func (s *EventStream) Handle(ctx context.Context, evt domain.DomainEvent) error {
	body, err := sonic.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = s.client.XAdd(ctx, &backend.XAddArgs{
		Stream: s.StreamKey(evt.TenantID),
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":    evt.ID,
			"type":  string(evt.Type),
			"event": string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}
