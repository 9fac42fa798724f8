package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/aretw0/botflow/pkg/template"
)

// ActionExecutor runs a named action. *registry.Registry implements it.
type ActionExecutor interface {
	Execute(ctx context.Context, name string, uctx *domain.UniversalContext, params map[string]any) domain.ActionResult
}

// Resolver deep-resolves step params. template.Resolver implements it.
type Resolver interface {
	ResolveParams(params map[string]any, uctx *domain.UniversalContext, session *domain.SessionData) map[string]any
}

// SessionAccess is the session adapter contract. *session.Manager implements it.
// Record persists without refreshing UpdatedAt, so failures do not extend a
// suspension.
type SessionAccess interface {
	GetOrCreate(ctx context.Context, key domain.SessionKey) (*domain.SessionData, error)
	Save(ctx context.Context, session *domain.SessionData) error
	Record(ctx context.Context, session *domain.SessionData) error
}

// Engine is the flow interpreter.
// It keeps no in-memory continuation: the resume point is the
// (CurrentStepID, CollectedData, WaitingForInput) tuple of the persisted session.
type Engine struct {
	blueprints ports.BlueprintStore
	sessions   SessionAccess
	actions    ActionExecutor
	resolver   Resolver
	events     ports.EventPublisher
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	maxSteps   int
	suspendTTL time.Duration
	now        func() time.Time
}

// NewEngine creates a new engine with dependencies.
func NewEngine(blueprints ports.BlueprintStore, sessions SessionAccess, actions ActionExecutor, opts ...EngineOption) *Engine {
	e := &Engine{
		blueprints: blueprints,
		sessions:   sessions,
		actions:    actions,
		resolver:   template.Resolver{},
		events:     ports.NopPublisher{},
		logger:     logging.NewNop(),
		maxSteps:   DefaultMaxSteps,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteFromTrigger resolves the blueprint bound to uctx.Metadata.Command and runs it.
// A session waiting inside that same blueprint is resumed instead, unless the
// event is a debug trigger.
func (e *Engine) ExecuteFromTrigger(ctx context.Context, uctx *domain.UniversalContext) (res domain.FlowExecutionResult) {
	var id string
	defer e.recoverPanic(uctx, &id, &res)
	e.publishInteraction(uctx, "trigger")

	command := uctx.Metadata.Command
	id, err := e.blueprints.ResolveTrigger(ctx, uctx.TenantID, command)
	if err != nil {
		return e.reject(uctx, "", e.lookupError(err, fmt.Sprintf("no blueprint bound to trigger %q", command)))
	}

	bp, err := e.blueprints.Get(ctx, uctx.TenantID, id)
	if err != nil {
		return e.reject(uctx, id, e.lookupError(err, fmt.Sprintf("trigger %q points at missing blueprint %q", command, id)))
	}

	if bp.Trigger != command {
		return e.reject(uctx, bp.ID, domain.NewError(domain.ErrTriggerMismatch,
			fmt.Sprintf("trigger mismatch: %q resolved to blueprint %q which declares %q", command, bp.ID, bp.Trigger),
			nil, map[string]any{"command": command, "blueprint_id": bp.ID, "declared": bp.Trigger}))
	}

	session, err := e.sessions.GetOrCreate(ctx, uctx.SessionKey())
	if err != nil {
		return e.reject(uctx, bp.ID, domain.NewError(domain.ErrStore, "failed to load session", err, nil))
	}

	if e.isWaiting(session) && session.CurrentFlowID == bp.ID && !uctx.Metadata.Debug {
		return e.run(ctx, uctx, bp, session, session.CurrentStepID, true)
	}
	return e.run(ctx, uctx, bp, session, bp.EntryStep, false)
}

// ExecuteResume continues the flow the session is suspended in.
// There is no trigger resolution and no mismatch check.
func (e *Engine) ExecuteResume(ctx context.Context, uctx *domain.UniversalContext) (res domain.FlowExecutionResult) {
	var id string
	defer e.recoverPanic(uctx, &id, &res)
	e.publishInteraction(uctx, "resume")

	session, err := e.sessions.GetOrCreate(ctx, uctx.SessionKey())
	if err != nil {
		return e.reject(uctx, "", domain.NewError(domain.ErrStore, "failed to load session", err, nil))
	}
	if !e.isWaiting(session) || session.CurrentFlowID == "" || session.CurrentStepID == "" {
		return e.reject(uctx, session.CurrentFlowID, domain.NewError(domain.ErrNoActiveFlow,
			"no active flow to resume", nil, map[string]any{"session": session.Key().String()}))
	}

	id = session.CurrentFlowID
	bp, err := e.blueprints.Get(ctx, uctx.TenantID, id)
	if err != nil {
		return e.reject(uctx, session.CurrentFlowID, e.lookupError(err,
			fmt.Sprintf("suspended blueprint %q no longer exists", session.CurrentFlowID)))
	}
	return e.run(ctx, uctx, bp, session, session.CurrentStepID, true)
}

// isWaiting applies the suspension expiry policy.
func (e *Engine) isWaiting(s *domain.SessionData) bool {
	if !s.WaitingForInput {
		return false
	}
	if e.suspendTTL <= 0 || s.UpdatedAt.IsZero() {
		return true
	}
	return e.now().Sub(s.UpdatedAt) <= e.suspendTTL
}

func (e *Engine) lookupError(err error, msg string) error {
	if errors.Is(err, domain.ErrBlueprintNotFound) {
		return domain.NewError(domain.ErrNoBlueprint, msg, nil, nil)
	}
	return domain.NewError(domain.ErrStore, "blueprint lookup failed", err, nil)
}

// run is the step loop. It is iterative so call depth stays constant
// regardless of flow length.
func (e *Engine) run(ctx context.Context, uctx *domain.UniversalContext, bp *domain.Blueprint, session *domain.SessionData, start string, resuming bool) domain.FlowExecutionResult {
	snapshot := session.Clone()
	working := session
	logger := e.logger.With("tenant", uctx.TenantID, "blueprint_id", bp.ID)

	stepID := start
	executed := 0
	for {
		if executed >= e.maxSteps {
			return e.failed(ctx, uctx, bp, snapshot, stepID, executed, domain.NewError(domain.ErrStepLimitExceeded,
				fmt.Sprintf("step limit of %d exceeded", e.maxSteps), nil,
				map[string]any{"max_steps": e.maxSteps, "step_id": stepID}))
		}

		step, ok := bp.Step(stepID)
		if !ok {
			return e.failed(ctx, uctx, bp, snapshot, stepID, executed, domain.NewError(domain.ErrStepMissing,
				fmt.Sprintf("step %q not found in blueprint %q", stepID, bp.ID), nil, nil))
		}

		params := e.resolver.ResolveParams(step.Params, uctx, working)
		if resuming {
			params[domain.KeyIsResuming] = true
			resuming = false
		}

		started := e.now()
		e.emitStepEnter(ctx, uctx, bp, step, started)
		result := e.actions.Execute(ctx, step.Action, uctx, params)
		executed++
		e.emitStepLeave(ctx, uctx, bp, step, started, result.Success)

		if !result.Success {
			logger.Debug("step failed", "step_id", step.ID, "action", step.Action, "err", result.Error)
			return e.failed(ctx, uctx, bp, snapshot, step.ID, executed, result.Error)
		}

		working.Merge(result.Data)

		if result.Suspended() {
			working.Suspend(bp.ID, step.ID)
			working.LastError = ""
			if err := e.sessions.Save(ctx, working); err != nil {
				return e.storeFailure(uctx, bp, executed, err)
			}
			logger.Debug("flow suspended", "step_id", step.ID, "steps", executed)
			return domain.FlowExecutionResult{
				Success:       true,
				StepsExecuted: executed,
				BlueprintID:   bp.ID,
				Status:        domain.FlowSuspended,
				Suspended:     true,
			}
		}

		next := nextStep(step, result)
		if next == "" {
			working.CurrentFlowID = bp.ID
			working.ClearPosition()
			working.LastError = ""
			if err := e.sessions.Save(ctx, working); err != nil {
				return e.storeFailure(uctx, bp, executed, err)
			}
			logger.Debug("flow completed", "steps", executed)
			e.events.Publish(domain.NewEvent(domain.EventFlowCompleted, uctx.TenantID, uctx.BotID, map[string]any{
				"blueprint_id":   bp.ID,
				"provider":       uctx.Provider,
				"user_id":        uctx.UserID,
				"steps_executed": executed,
				"collected_data": domain.CloneMap(working.CollectedData),
			}))
			return domain.FlowExecutionResult{
				Success:       true,
				StepsExecuted: executed,
				BlueprintID:   bp.ID,
				Status:        domain.FlowCompleted,
			}
		}
		stepID = next
	}
}

// nextStep picks the successor: an explicit redirect wins, then the branch of
// a boolean result, then NextStep. An empty branch falls back to NextStep.
func nextStep(step domain.Step, result domain.ActionResult) string {
	if target, ok := result.Data[domain.KeyNextStep].(string); ok && target != "" {
		return target
	}
	if branch, ok := result.Data[domain.KeyResult].(bool); ok {
		if branch && step.TrueStep != "" {
			return step.TrueStep
		}
		if !branch && step.FalseStep != "" {
			return step.FalseStep
		}
	}
	return step.NextStep
}

// failed persists only the error marker on the pre-execution snapshot.
func (e *Engine) failed(ctx context.Context, uctx *domain.UniversalContext, bp *domain.Blueprint, snapshot *domain.SessionData, stepID string, executed int, cause error) domain.FlowExecutionResult {
	if cause == nil {
		cause = errors.New("action failed")
	}
	msg := domain.ErrorMessage(cause)
	code := domain.ErrorCode(cause)
	if code == "" {
		code = domain.CodeProviderError
	}

	snapshot.LastError = msg
	if err := e.sessions.Record(ctx, snapshot); err != nil {
		e.logger.Error("failed to record flow error on session",
			"tenant", uctx.TenantID,
			"blueprint_id", bp.ID,
			"err", err,
		)
	}

	e.logger.Warn("flow failed",
		"tenant", uctx.TenantID,
		"blueprint_id", bp.ID,
		"step_id", stepID,
		"code", code,
		"err", msg,
	)
	e.publishError(uctx, bp.ID, stepID, executed, code, msg)

	return domain.FlowExecutionResult{
		Success:       false,
		Error:         msg,
		ErrorCode:     code,
		StepsExecuted: executed,
		BlueprintID:   bp.ID,
		Status:        domain.FlowFailed,
	}
}

func (e *Engine) storeFailure(uctx *domain.UniversalContext, bp *domain.Blueprint, executed int, err error) domain.FlowExecutionResult {
	cause := domain.NewError(domain.ErrStore, "failed to save session", err, nil)
	msg := domain.ErrorMessage(cause)
	e.logger.Error("flow state not persisted", "tenant", uctx.TenantID, "blueprint_id", bp.ID, "err", err)
	e.publishError(uctx, bp.ID, "", executed, domain.CodeStoreFailure, msg)
	return domain.FlowExecutionResult{
		Success:       false,
		Error:         msg,
		ErrorCode:     domain.CodeStoreFailure,
		StepsExecuted: executed,
		BlueprintID:   bp.ID,
		Status:        domain.FlowFailed,
	}
}

// reject fails an execution before any step ran; the session is not touched.
func (e *Engine) reject(uctx *domain.UniversalContext, blueprintID string, cause error) domain.FlowExecutionResult {
	msg := domain.ErrorMessage(cause)
	code := domain.ErrorCode(cause)
	e.logger.Warn("flow rejected",
		"tenant", uctx.TenantID,
		"command", uctx.Metadata.Command,
		"blueprint_id", blueprintID,
		"code", code,
		"err", msg,
	)
	e.publishError(uctx, blueprintID, "", 0, code, msg)
	return domain.FlowExecutionResult{
		Success:     false,
		Error:       msg,
		ErrorCode:   code,
		BlueprintID: blueprintID,
		Status:      domain.FlowFailed,
	}
}

// recoverPanic reads blueprintID at panic time; the result is not filled yet.
func (e *Engine) recoverPanic(uctx *domain.UniversalContext, blueprintID *string, res *domain.FlowExecutionResult) {
	if p := recover(); p != nil {
		*res = e.reject(uctx, *blueprintID, domain.NewError(domain.ErrInternal,
			"engine panic", fmt.Errorf("%v", p), nil))
	}
}

func (e *Engine) publishError(uctx *domain.UniversalContext, blueprintID, stepID string, executed int, code, msg string) {
	e.events.Publish(domain.NewEvent(domain.EventFlowError, uctx.TenantID, uctx.BotID, map[string]any{
		"blueprint_id":   blueprintID,
		"step_id":        stepID,
		"provider":       uctx.Provider,
		"user_id":        uctx.UserID,
		"steps_executed": executed,
		"error":          msg,
		"error_code":     code,
	}))
}

func (e *Engine) publishInteraction(uctx *domain.UniversalContext, kind string) {
	e.events.Publish(domain.NewEvent(domain.EventUserInteraction, uctx.TenantID, uctx.BotID, map[string]any{
		"provider": uctx.Provider,
		"user_id":  uctx.UserID,
		"chat_id":  uctx.ChatID,
		"command":  uctx.Metadata.Command,
		"kind":     kind,
	}))
}

func (e *Engine) emitStepEnter(ctx context.Context, uctx *domain.UniversalContext, bp *domain.Blueprint, step domain.Step, at time.Time) {
	if e.hooks.OnStepEnter == nil {
		return
	}
	e.hooks.OnStepEnter(ctx, &domain.StepEvent{
		Timestamp:   at,
		TenantID:    uctx.TenantID,
		BlueprintID: bp.ID,
		StepID:      step.ID,
		Action:      step.Action,
	})
}

func (e *Engine) emitStepLeave(ctx context.Context, uctx *domain.UniversalContext, bp *domain.Blueprint, step domain.Step, started time.Time, ok bool) {
	if e.hooks.OnStepLeave == nil {
		return
	}
	now := e.now()
	e.hooks.OnStepLeave(ctx, &domain.StepEvent{
		Timestamp:   now,
		TenantID:    uctx.TenantID,
		BlueprintID: bp.ID,
		StepID:      step.ID,
		Action:      step.Action,
		Success:     ok,
		Duration:    now.Sub(started),
	})
}
