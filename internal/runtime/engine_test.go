package runtime_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/botflow/internal/runtime"
	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/adapters/memory"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/aretw0/botflow/pkg/registry"
	"github.com/aretw0/botflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *textSender) SendText(_ context.Context, _ ports.Target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *textSender) SendButtons(ctx context.Context, t ports.Target, text string, _ []ports.Button) error {
	return s.SendText(ctx, t, text)
}

func (s *textSender) SendPhoto(ctx context.Context, t ports.Target, _, caption string) error {
	return s.SendText(ctx, t, caption)
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (l *eventLog) Publish(evt domain.DomainEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) ofType(t domain.EventType) []domain.DomainEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.DomainEvent
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	engine     *runtime.Engine
	blueprints *memory.BlueprintStore
	sessions   *session.Manager
	registry   *registry.Registry
	sender     *textSender
	events     *eventLog
}

func newHarness(t *testing.T, opts ...runtime.EngineOption) *harness {
	t.Helper()
	h := &harness{
		blueprints: memory.NewBlueprintStore(),
		sessions:   session.NewManager(memory.NewStore()),
		registry:   registry.NewRegistry(),
		sender:     &textSender{},
		events:     &eventLog{},
	}
	actions.New(actions.Senders{"telegram": h.sender}).Register(h.registry)
	opts = append([]runtime.EngineOption{runtime.WithEvents(h.events)}, opts...)
	h.engine = runtime.NewEngine(h.blueprints, h.sessions, h.registry, opts...)
	return h
}

func (h *harness) put(t *testing.T, bp *domain.Blueprint) {
	t.Helper()
	require.NoError(t, bp.Validate())
	require.NoError(t, h.blueprints.Put(context.Background(), bp))
}

func (h *harness) session(t *testing.T, uctx *domain.UniversalContext) *domain.SessionData {
	t.Helper()
	s, err := h.sessions.Store().Load(context.Background(), uctx.SessionKey())
	require.NoError(t, err)
	return s
}

func event(command, input string) *domain.UniversalContext {
	return &domain.UniversalContext{
		TenantID: "acme",
		Provider: "telegram",
		UserID:   "42",
		ChatID:   "42",
		BotID:    "bot-1",
		Metadata: domain.Metadata{Command: command, LastInput: input, UserName: "Ana"},
	}
}

func welcome() *domain.Blueprint {
	return &domain.Blueprint{
		ID: "welcome", TenantID: "acme", Trigger: "/start", EntryStep: "welcome",
		Steps: map[string]domain.Step{
			"welcome": {Action: "send_message", Params: map[string]any{"text": "hi {{user_name}}"}},
		},
	}
}

func onboarding() *domain.Blueprint {
	return &domain.Blueprint{
		ID: "onboarding", TenantID: "acme", Trigger: "/join", EntryStep: "greet",
		Steps: map[string]domain.Step{
			"greet": {Action: "send_message", Params: map[string]any{"text": "welcome"}, NextStep: "ask_email"},
			"ask_email": {Action: "collect_input", NextStep: "thanks", Params: map[string]any{
				"prompt": "email?", "variable": "email", "validator": "email",
			}},
			"thanks": {Action: "send_message", Params: map[string]any{"text": "thanks {{email}}"}},
		},
	}
}

func TestEngine_HelloExample(t *testing.T) {
	h := newHarness(t)
	h.put(t, welcome())

	res := h.engine.ExecuteFromTrigger(context.Background(), event("/start", ""))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.StepsExecuted)
	assert.Equal(t, "welcome", res.BlueprintID)
	assert.Equal(t, domain.FlowCompleted, res.Status)
	assert.Equal(t, []string{"hi Ana"}, h.sender.texts)

	completed := h.events.ofType(domain.EventFlowCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0].Payload["steps_executed"])
	assert.Len(t, h.events.ofType(domain.EventUserInteraction), 1)
}

func TestEngine_TriggerIntegrity(t *testing.T) {
	h := newHarness(t)
	bp := welcome()
	bp.Trigger = "/other"
	h.put(t, bp)
	h.blueprints.BindTrigger("acme", "/start", "welcome")

	res := h.engine.ExecuteFromTrigger(context.Background(), event("/start", ""))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "mismatch")
	assert.Equal(t, domain.CodeTriggerMismatch, res.ErrorCode)
	assert.Zero(t, res.StepsExecuted)
	assert.Empty(t, h.sender.texts, "no step of a ghost-triggered blueprint may run")
	assert.Len(t, h.events.ofType(domain.EventFlowError), 1)

	_, err := h.sessions.Store().Load(context.Background(), event("", "").SessionKey())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_UnknownTrigger(t *testing.T) {
	h := newHarness(t)
	res := h.engine.ExecuteFromTrigger(context.Background(), event("/nope", ""))
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeBlueprintNotFound, res.ErrorCode)
}

func TestEngine_SuspendResume(t *testing.T) {
	h := newHarness(t)
	h.put(t, onboarding())
	ctx := context.Background()

	first := h.engine.ExecuteFromTrigger(ctx, event("/join", ""))
	require.True(t, first.Success, first.Error)
	assert.True(t, first.Suspended)
	assert.Equal(t, domain.FlowSuspended, first.Status)
	assert.Equal(t, 2, first.StepsExecuted)
	assert.Equal(t, []string{"welcome", "email?"}, h.sender.texts)

	s := h.session(t, event("", ""))
	assert.True(t, s.WaitingForInput)
	assert.Equal(t, "ask_email", s.CurrentStepID)
	assert.Equal(t, "onboarding", s.CurrentFlowID)
	assert.Empty(t, h.events.ofType(domain.EventFlowCompleted), "suspension emits no completion")

	second := h.engine.ExecuteResume(ctx, event("", "ana@example.com"))
	require.True(t, second.Success, second.Error)
	assert.Equal(t, domain.FlowCompleted, second.Status)
	assert.Equal(t, 2, second.StepsExecuted)
	assert.Equal(t, []string{"welcome", "email?", "thanks ana@example.com"}, h.sender.texts,
		"prior steps must not run again")

	s = h.session(t, event("", ""))
	assert.False(t, s.WaitingForInput)
	assert.Empty(t, s.CurrentStepID)
	assert.Equal(t, "ana@example.com", s.CollectedData["email"])
	_, leaked := s.CollectedData[domain.KeyIsResuming]
	assert.False(t, leaked)
}

func TestEngine_TriggerWhileWaitingResumes(t *testing.T) {
	h := newHarness(t)
	h.put(t, onboarding())
	ctx := context.Background()

	require.True(t, h.engine.ExecuteFromTrigger(ctx, event("/join", "")).Success)

	res := h.engine.ExecuteFromTrigger(ctx, event("/join", "ana@example.com"))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.FlowCompleted, res.Status)
	assert.Equal(t, 2, res.StepsExecuted)
}

func TestEngine_DebugTriggerRestarts(t *testing.T) {
	h := newHarness(t)
	h.put(t, onboarding())
	ctx := context.Background()

	require.True(t, h.engine.ExecuteFromTrigger(ctx, event("/join", "")).Success)

	dbg := event("/join", "ana@example.com")
	dbg.Metadata.Debug = true
	res := h.engine.ExecuteFromTrigger(ctx, dbg)
	require.True(t, res.Success)
	assert.True(t, res.Suspended, "debug trigger starts at the entry step and suspends again")
	assert.Equal(t, 2, res.StepsExecuted)
}

func TestEngine_ValidationFailureKeepsResumePoint(t *testing.T) {
	h := newHarness(t)
	h.put(t, onboarding())
	ctx := context.Background()

	require.True(t, h.engine.ExecuteFromTrigger(ctx, event("/join", "")).Success)

	res := h.engine.ExecuteResume(ctx, event("", "not-an-email"))
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeValidationFailed, res.ErrorCode)

	s := h.session(t, event("", ""))
	assert.True(t, s.WaitingForInput)
	assert.Equal(t, "ask_email", s.CurrentStepID)
	assert.Contains(t, s.LastError, "validation")
	assert.Len(t, h.events.ofType(domain.EventFlowError), 1)
}

func TestEngine_ResumeWithoutActiveFlow(t *testing.T) {
	h := newHarness(t)
	res := h.engine.ExecuteResume(context.Background(), event("", "hello"))
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeNoActiveFlow, res.ErrorCode)
}

func TestEngine_SuspendTTL(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	h := newHarness(t, runtime.WithSuspendTTL(time.Hour), runtime.WithClock(clock))
	h.sessions = session.NewManager(h.sessions.Store(), session.WithClock(clock))
	h.engine = runtime.NewEngine(h.blueprints, h.sessions, h.registry,
		runtime.WithEvents(h.events), runtime.WithSuspendTTL(time.Hour), runtime.WithClock(clock))
	h.put(t, onboarding())
	ctx := context.Background()

	require.True(t, h.engine.ExecuteFromTrigger(ctx, event("/join", "")).Success)

	now = now.Add(2 * time.Hour)
	res := h.engine.ExecuteResume(ctx, event("", "ana@example.com"))
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeNoActiveFlow, res.ErrorCode)
}

func TestEngine_SuspendTTL_RejectedInputDoesNotExtend(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	h := newHarness(t)
	h.sessions = session.NewManager(h.sessions.Store(), session.WithClock(clock))
	h.engine = runtime.NewEngine(h.blueprints, h.sessions, h.registry,
		runtime.WithEvents(h.events), runtime.WithSuspendTTL(time.Hour), runtime.WithClock(clock))
	h.put(t, onboarding())
	ctx := context.Background()

	require.True(t, h.engine.ExecuteFromTrigger(ctx, event("/join", "")).Success)

	now = now.Add(50 * time.Minute)
	res := h.engine.ExecuteResume(ctx, event("", "not-an-email"))
	assert.Equal(t, domain.CodeValidationFailed, res.ErrorCode)
	s := h.session(t, event("", ""))
	assert.True(t, s.WaitingForInput)
	assert.NotEmpty(t, s.LastError)
	assert.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), s.UpdatedAt.UTC())

	now = now.Add(40 * time.Minute)
	res = h.engine.ExecuteResume(ctx, event("", "ana@example.com"))
	assert.Equal(t, domain.CodeNoActiveFlow, res.ErrorCode, "the window counts from the suspension")
}

func TestEngine_StepLimit(t *testing.T) {
	h := newHarness(t, runtime.WithMaxSteps(10))
	h.put(t, &domain.Blueprint{
		ID: "loop", TenantID: "acme", Trigger: "/loop", EntryStep: "a",
		Steps: map[string]domain.Step{
			"a": {Action: "set_variable", Params: map[string]any{"name": "x", "value": "1"}, NextStep: "b"},
			"b": {Action: "set_variable", Params: map[string]any{"name": "y", "value": "2"}, NextStep: "a"},
		},
	})

	res := h.engine.ExecuteFromTrigger(context.Background(), event("/loop", ""))
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeStepLimitExceeded, res.ErrorCode)
	assert.Equal(t, 10, res.StepsExecuted)
}

func TestEngine_ConditionBranches(t *testing.T) {
	bp := &domain.Blueprint{
		ID: "quiz", TenantID: "acme", Trigger: "/quiz", EntryStep: "ask",
		Steps: map[string]domain.Step{
			"ask": {Action: "collect_input", NextStep: "check", Params: map[string]any{"variable": "answer"}},
			"check": {Action: "condition", TrueStep: "right", FalseStep: "wrong",
				Params: map[string]any{"expression": "{{answer}} == 'paris'"}},
			"right": {Action: "send_message", Params: map[string]any{"text": "correct"}},
			"wrong": {Action: "send_message", Params: map[string]any{"text": "nope"}},
		},
	}

	for input, want := range map[string]string{"paris": "correct", "rome": "nope"} {
		t.Run(input, func(t *testing.T) {
			h := newHarness(t)
			h.put(t, bp)
			ctx := context.Background()
			require.True(t, h.engine.ExecuteFromTrigger(ctx, event("/quiz", "")).Success)

			res := h.engine.ExecuteResume(ctx, event("", input))
			require.True(t, res.Success, res.Error)
			assert.Equal(t, []string{want}, h.sender.texts)

			_, leaked := h.session(t, event("", "")).CollectedData[domain.KeyResult]
			assert.False(t, leaked)
		})
	}
}

func TestEngine_UnknownAction(t *testing.T) {
	h := newHarness(t)
	h.put(t, &domain.Blueprint{
		ID: "bad", TenantID: "acme", Trigger: "/bad", EntryStep: "x",
		Steps: map[string]domain.Step{"x": {Action: "teleport"}},
	})

	res := h.engine.ExecuteFromTrigger(context.Background(), event("/bad", ""))
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeUnknownAction, res.ErrorCode)
	assert.Equal(t, 1, res.StepsExecuted)
}

func TestEngine_LongFlowDoesNotRecurse(t *testing.T) {
	const n = 5000
	steps := make(map[string]domain.Step, n)
	for i := 0; i < n; i++ {
		next := ""
		if i < n-1 {
			next = stepName(i + 1)
		}
		steps[stepName(i)] = domain.Step{Action: "set_variable", Params: map[string]any{"name": "i", "value": i}, NextStep: next}
	}
	h := newHarness(t, runtime.WithMaxSteps(n))
	h.put(t, &domain.Blueprint{ID: "long", TenantID: "acme", Trigger: "/long", EntryStep: stepName(0), Steps: steps})

	res := h.engine.ExecuteFromTrigger(context.Background(), event("/long", ""))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, n, res.StepsExecuted)
}

func stepName(i int) string {
	return "s" + strconv.Itoa(i)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var entered, left []string
	h := newHarness(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) { entered = append(entered, e.StepID) },
		OnStepLeave: func(_ context.Context, e *domain.StepEvent) { left = append(left, e.StepID) },
	}))
	h.put(t, onboarding())

	require.True(t, h.engine.ExecuteFromTrigger(context.Background(), event("/join", "")).Success)
	assert.Equal(t, []string{"greet", "ask_email"}, entered)
	assert.Equal(t, entered, left)
}

func TestEngine_HandlerRedirect(t *testing.T) {
	h := newHarness(t)
	h.registry.Register("jump", func(context.Context, *domain.UniversalContext, map[string]any) domain.ActionResult {
		return domain.Ok(map[string]any{domain.KeyNextStep: "end"})
	})
	h.put(t, &domain.Blueprint{
		ID: "jumpy", TenantID: "acme", Trigger: "/jump", EntryStep: "start",
		Steps: map[string]domain.Step{
			"start":   {Action: "jump", NextStep: "skipped"},
			"skipped": {Action: "send_message", Params: map[string]any{"text": "skipped"}},
			"end":     {Action: "send_message", Params: map[string]any{"text": "end"}},
		},
	})

	res := h.engine.ExecuteFromTrigger(context.Background(), event("/jump", ""))
	require.True(t, res.Success)
	assert.Equal(t, []string{"end"}, h.sender.texts)
}

func TestEngine_NeverPanicsAcrossBoundary(t *testing.T) {
	h := newHarness(t)
	h.engine = runtime.NewEngine(panickyStore{}, h.sessions, h.registry)

	res := h.engine.ExecuteFromTrigger(context.Background(), event("/start", ""))
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeInternal, res.ErrorCode)
}

func TestEngine_PanicKeepsBlueprintID(t *testing.T) {
	h := newHarness(t)
	h.engine = runtime.NewEngine(brokenGetStore{}, h.sessions, h.registry)

	res := h.engine.ExecuteFromTrigger(context.Background(), event("/start", ""))
	assert.Equal(t, domain.CodeInternal, res.ErrorCode)
	assert.Equal(t, "welcome", res.BlueprintID)
}

type brokenGetStore struct{ ports.BlueprintStore }

func (brokenGetStore) ResolveTrigger(context.Context, string, string) (string, error) {
	return "welcome", nil
}

func (brokenGetStore) Get(context.Context, string, string) (*domain.Blueprint, error) {
	panic("blueprint decode")
}

type panickyStore struct{ ports.BlueprintStore }

func (panickyStore) ResolveTrigger(context.Context, string, string) (string, error) {
	panic("index corrupted")
}
