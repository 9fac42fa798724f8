package botflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/internal/runtime"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/aretw0/botflow/pkg/registry"
	"github.com/aretw0/botflow/pkg/session"
)

// Version is the release string reported by the CLI and the HTTP surface.
// It is overridden at build time with -ldflags "-X github.com/aretw0/botflow.Version=...".
var Version = "0.1.0-dev"

// Engine is the high-level entry point for the botflow library.
// It wraps the internal runtime and serialises executions per user.
type Engine struct {
	runtime    *runtime.Engine
	sessions   *session.Manager
	blueprints ports.BlueprintStore
	registry   *registry.Registry

	runtimeOpts []runtime.EngineOption
	sessionOpts []session.Option
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine and its session manager.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEvents wires a domain event publisher, usually an *events.Dispatcher.
func WithEvents(p ports.EventPublisher) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithEvents(p))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithMaxSteps bounds the number of steps one execution may run.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxSteps(n))
	}
}

// WithSuspendTTL expires waiting sessions older than ttl. Zero keeps them forever.
func WithSuspendTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithSuspendTTL(ttl))
	}
}

// WithLocker adds a distributed lock around every execution, for multi-instance deployments.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithLocker(locker), session.WithLockTTL(ttl))
	}
}

// New wires an engine over the given stores and action registry.
func New(blueprints ports.BlueprintStore, sessions ports.SessionStore, reg *registry.Registry, opts ...Option) (*Engine, error) {
	if blueprints == nil || sessions == nil || reg == nil {
		return nil, fmt.Errorf("botflow: blueprint store, session store and registry are required")
	}
	eng := &Engine{
		blueprints: blueprints,
		registry:   reg,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	eng.sessions = session.NewManager(sessions, append([]session.Option{session.WithLogger(eng.logger)}, eng.sessionOpts...)...)
	eng.runtime = runtime.NewEngine(blueprints, eng.sessions, reg,
		append([]runtime.EngineOption{runtime.WithLogger(eng.logger)}, eng.runtimeOpts...)...)
	return eng, nil
}

// ExecuteFromTrigger runs the blueprint bound to the event's command while holding
// the user's session lock.
func (e *Engine) ExecuteFromTrigger(ctx context.Context, uctx *domain.UniversalContext) domain.FlowExecutionResult {
	return e.locked(ctx, uctx, e.runtime.ExecuteFromTrigger)
}

// ExecuteResume continues the user's suspended flow while holding the session lock.
func (e *Engine) ExecuteResume(ctx context.Context, uctx *domain.UniversalContext) domain.FlowExecutionResult {
	return e.locked(ctx, uctx, e.runtime.ExecuteResume)
}

func (e *Engine) locked(ctx context.Context, uctx *domain.UniversalContext, run func(context.Context, *domain.UniversalContext) domain.FlowExecutionResult) domain.FlowExecutionResult {
	if uctx == nil {
		return domain.FlowExecutionResult{
			Status:    domain.FlowFailed,
			Error:     "missing event context",
			ErrorCode: domain.CodeValidationFailed,
		}
	}
	var res domain.FlowExecutionResult
	err := e.sessions.WithLock(ctx, uctx.SessionKey(), func(ctx context.Context) error {
		res = run(ctx, uctx)
		return nil
	})
	if err != nil {
		e.logger.Error("session lock failed", "tenant", uctx.TenantID, "user", uctx.UserID, "err", err)
		return domain.FlowExecutionResult{
			Status:    domain.FlowFailed,
			Error:     err.Error(),
			ErrorCode: domain.CodeStoreFailure,
		}
	}
	return res
}

// Sessions returns the session manager used by the engine.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Blueprints returns the blueprint store.
func (e *Engine) Blueprints() ports.BlueprintStore {
	return e.blueprints
}

// Registry returns the action registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}
