package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a domain event.
type EventType string

const (
	EventFlowCompleted   EventType = "FLOW_COMPLETED"
	EventFlowError       EventType = "FLOW_ERROR"
	EventUserInteraction EventType = "USER_INTERACTION"
	EventJobDelivered    EventType = "JOB_DELIVERED"
	EventJobFailed       EventType = "JOB_FAILED"
	EventJobRescheduled  EventType = "JOB_RESCHEDULED"
)

// DomainEvent is an append-only, fire-and-forget notification.
// There is no ordering guarantee between events of different types.
type DomainEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	TenantID   string         `json:"tenant_id"`
	BotID      string         `json:"bot_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent stamps a fresh event.
func NewEvent(eventType EventType, tenantID, botID string, payload map[string]any) DomainEvent {
	return DomainEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   tenantID,
		BotID:      botID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// StepEvent describes one step boundary inside an engine execution.
type StepEvent struct {
	Timestamp   time.Time     `json:"timestamp"`
	TenantID    string        `json:"tenant_id"`
	BlueprintID string        `json:"blueprint_id"`
	StepID      string        `json:"step_id"`
	Action      string        `json:"action"`
	Success     bool          `json:"success,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines synchronous callbacks for engine observability.
// They run on the execution path and must return quickly.
type LifecycleHooks struct {
	OnStepEnter func(context.Context, *StepEvent)
	OnStepLeave func(context.Context, *StepEvent)
}
