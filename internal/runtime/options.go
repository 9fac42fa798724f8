package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
)

// DefaultMaxSteps bounds the steps a single inbound event may execute.
const DefaultMaxSteps = 100

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEvents sets the domain event publisher.
func WithEvents(p ports.EventPublisher) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

// WithLifecycleHooks registers step-level observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithSuspendTTL makes a waiting session older than ttl count as not waiting.
// Zero (the default) means suspended flows never expire.
func WithSuspendTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.suspendTTL = ttl
	}
}

// WithResolver replaces the template resolver.
func WithResolver(r Resolver) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}
