package scheduler_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/adapters/memory"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/aretw0/botflow/pkg/scheduler"
	"github.com/stretchr/testify/require"
)

// fakeClock only fires timers from Advance, on the caller's goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) scheduler.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

// Advance moves time forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due, keep []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.at.After(c.now):
			t.done = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type sentMessage struct {
	ChatID string
	Text   string
	Photo  string
	Labels []string
}

// scriptedSender records deliveries and fails them according to fail.
type scriptedSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail func(chatID string) error
}

func (s *scriptedSender) deliver(target ports.Target, msg sentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(target.ChatID); err != nil {
			return err
		}
	}
	msg.ChatID = target.ChatID
	s.sent = append(s.sent, msg)
	return nil
}

func (s *scriptedSender) SendText(_ context.Context, target ports.Target, text string) error {
	return s.deliver(target, sentMessage{Text: text})
}

func (s *scriptedSender) SendButtons(_ context.Context, target ports.Target, text string, buttons []ports.Button) error {
	labels := make([]string, 0, len(buttons))
	for _, b := range buttons {
		labels = append(labels, b.Label)
	}
	return s.deliver(target, sentMessage{Text: text, Labels: labels})
}

func (s *scriptedSender) SendPhoto(_ context.Context, target ports.Target, photoURL, caption string) error {
	return s.deliver(target, sentMessage{Text: caption, Photo: photoURL})
}

func (s *scriptedSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (p *recordingPublisher) Publish(evt domain.DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	actor    *scheduler.Actor
	clock    *fakeClock
	sender   *scriptedSender
	jobs     *memory.JobStore
	outcomes *memory.OutcomeLog
	events   *recordingPublisher
}

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, opts ...scheduler.Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:    newFakeClock(base),
		sender:   &scriptedSender{},
		jobs:     memory.NewJobStore(),
		outcomes: memory.NewOutcomeLog(),
		events:   &recordingPublisher{},
	}
	f.start(t, opts...)
	return f
}

func (f *fixture) start(t *testing.T, opts ...scheduler.Option) {
	t.Helper()
	opts = append([]scheduler.Option{
		scheduler.WithClock(f.clock),
		scheduler.WithEvents(f.events),
		scheduler.WithRetryBackoff(time.Minute),
	}, opts...)
	f.actor = scheduler.NewActor("acme", f.jobs, f.outcomes, actions.Senders{"telegram": f.sender}, opts...)
	require.NoError(t, f.actor.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.actor.Stop(ctx)
	})
}

func (f *fixture) schedule(t *testing.T, job *domain.RemarketingJob) string {
	t.Helper()
	if job.Channel == "" {
		job.Channel = "telegram"
	}
	res, err := f.actor.Schedule(context.Background(), job)
	require.NoError(t, err)
	require.True(t, res.Scheduled)
	return res.JobID
}

func (f *fixture) armedAt(t *testing.T) (time.Time, bool) {
	t.Helper()
	at, ok, err := f.actor.ArmedAt(context.Background())
	require.NoError(t, err)
	return at, ok
}

func textJob(id, chatID string, at time.Time) *domain.RemarketingJob {
	return &domain.RemarketingJob{
		ID:           id,
		Channel:      "telegram",
		Payload:      map[string]any{"chat_id": chatID, "text": "hello " + chatID},
		ScheduledFor: at,
	}
}
