package ports

import "github.com/aretw0/botflow/pkg/domain"

// EventPublisher fans domain events out to subscribers without blocking the caller.
type EventPublisher interface {
	Publish(evt domain.DomainEvent)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(domain.DomainEvent) {}
