package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotStarted is returned by calls made before Start.
	ErrNotStarted = errors.New("scheduler actor not started")
	// ErrStopped is returned by calls made after Stop.
	ErrStopped = errors.New("scheduler actor stopped")
)

// Actor owns the jobs of one tenant. All of its state is touched only by its
// own goroutine; public methods post a message to the inbox and wait.
type Actor struct {
	tenant   string
	jobs     ports.JobStore
	outcomes ports.OutcomeLog
	senders  actions.Senders
	cfg      config

	inbox   chan func()
	quit    chan struct{}
	done    chan struct{}
	started atomic.Bool
	start   sync.Once
	stop    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc

	// Owned by the actor goroutine.
	timer   Timer
	armedAt time.Time
}

// NewActor creates a stopped actor for tenantID.
func NewActor(tenantID string, jobs ports.JobStore, outcomes ports.OutcomeLog, senders actions.Senders, opts ...Option) *Actor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.logger.With("tenant", tenantID)
	return &Actor{
		tenant:   tenantID,
		jobs:     jobs,
		outcomes: outcomes,
		senders:  senders,
		cfg:      cfg,
		inbox:    make(chan func()),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// TenantID returns the tenant this actor serves.
func (a *Actor) TenantID() string { return a.tenant }

// Start launches the actor goroutine and re-arms the timer from the persisted
// jobs. Deliveries triggered by the timer outlive ctx; use Stop to end them.
func (a *Actor) Start(ctx context.Context) error {
	first := false
	a.start.Do(func() {
		first = true
		a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
		go a.loop()
		a.started.Store(true)
	})
	if !first {
		return nil
	}
	return a.call(ctx, a.restore)
}

// Stop disarms the timer and ends the actor goroutine. A delivery round in
// progress is allowed to finish until ctx expires.
func (a *Actor) Stop(ctx context.Context) error {
	if !a.started.Load() {
		return nil
	}
	a.stop.Do(func() { close(a.quit) })
	defer a.cancel()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule persists job and arms the timer if it is now the earliest one.
func (a *Actor) Schedule(ctx context.Context, job *domain.RemarketingJob) (domain.ScheduleResult, error) {
	var res domain.ScheduleResult
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		res, err = a.schedule(ctx, job)
		return err
	})
	return res, err
}

// Cancel deletes a job. The timer is left alone; waking for a job that is
// gone is harmless.
func (a *Actor) Cancel(ctx context.Context, jobID string) (domain.CancelResult, error) {
	var res domain.CancelResult
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		res, err = a.cancelJob(ctx, jobID)
		return err
	})
	return res, err
}

// OnWake runs a wake-up round immediately, as if the timer had fired.
func (a *Actor) OnWake(ctx context.Context) error {
	return a.call(ctx, a.onWake)
}

// ArmedAt reports when the wake-up timer fires next.
func (a *Actor) ArmedAt(ctx context.Context) (time.Time, bool, error) {
	var at time.Time
	err := a.call(ctx, func(context.Context) error {
		at = a.armedAt
		return nil
	})
	return at, !at.IsZero(), err
}

func (a *Actor) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.quit:
			a.disarm()
			return
		case msg := <-a.inbox:
			msg()
		}
	}
}

// call runs fn on the actor goroutine and waits for its result.
func (a *Actor) call(ctx context.Context, fn func(context.Context) error) error {
	if !a.started.Load() {
		return ErrNotStarted
	}
	result := make(chan error, 1)
	msg := func() {
		defer func() {
			if r := recover(); r != nil {
				a.cfg.logger.Error("scheduler message panicked", "panic", r)
				result <- fmt.Errorf("scheduler panic: %v", r)
			}
		}()
		result <- fn(ctx)
	}
	select {
	case a.inbox <- msg:
	case <-a.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wake is the timer callback. It runs on the clock's goroutine.
func (a *Actor) wake() {
	msg := func() {
		defer func() {
			if r := recover(); r != nil {
				a.cfg.logger.Error("scheduler wake panicked", "panic", r)
			}
		}()
		_ = a.onWake(a.ctx)
	}
	select {
	case a.inbox <- msg:
	case <-a.quit:
	}
}

func (a *Actor) restore(ctx context.Context) error {
	all, err := a.jobs.List(ctx)
	if err != nil {
		return domain.NewError(domain.ErrStore, "restore scheduler", err, map[string]any{"tenant": a.tenant})
	}
	a.rearm(all)
	if len(all) > 0 {
		a.cfg.logger.Info("scheduler restored", "jobs", len(all), "armed_at", a.armedAt)
	}
	return nil
}

func (a *Actor) schedule(ctx context.Context, job *domain.RemarketingJob) (domain.ScheduleResult, error) {
	if job == nil {
		return domain.ScheduleResult{}, domain.NewError(domain.ErrInvalidJob, "job is nil", nil, nil)
	}
	j := job.Clone()
	switch {
	case j.TenantID == "":
		j.TenantID = a.tenant
	case j.TenantID != a.tenant:
		return domain.ScheduleResult{}, domain.NewError(domain.ErrInvalidJob,
			fmt.Sprintf("job belongs to tenant %q, not %q", j.TenantID, a.tenant), nil, nil)
	}
	if _, err := a.senders.Lookup(j.Channel); err != nil {
		return domain.ScheduleResult{}, domain.NewError(domain.ErrInvalidJob,
			fmt.Sprintf("unknown channel %q", j.Channel), nil, map[string]any{"channel": j.Channel})
	}
	if err := ValidateRecurrence(j.Recurrence); err != nil {
		return domain.ScheduleResult{}, domain.NewError(domain.ErrInvalidJob, "invalid recurrence", err, nil)
	}

	now := a.cfg.clock.Now()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.ScheduledFor.IsZero() {
		j.ScheduledFor = now
	}
	j.ScheduledFor = j.ScheduledFor.UTC()

	if err := a.jobs.Put(ctx, j); err != nil {
		return domain.ScheduleResult{}, domain.NewError(domain.ErrStore, "persist job", err, map[string]any{"job_id": j.ID})
	}
	if j.IsPending() {
		a.armIfSooner(j.ScheduledFor)
	}
	a.cfg.logger.Debug("job scheduled", "job_id", j.ID, "scheduled_for", j.ScheduledFor)
	return domain.ScheduleResult{Scheduled: true, JobID: j.ID}, nil
}

func (a *Actor) cancelJob(ctx context.Context, jobID string) (domain.CancelResult, error) {
	removed, err := a.jobs.Delete(ctx, jobID)
	if err != nil {
		return domain.CancelResult{}, domain.NewError(domain.ErrStore, "delete job", err, map[string]any{"job_id": jobID})
	}
	if removed {
		a.cfg.logger.Debug("job cancelled", "job_id", jobID)
	}
	return domain.CancelResult{Cancelled: removed}, nil
}

func (a *Actor) onWake(ctx context.Context) error {
	now := a.cfg.clock.Now()
	all, err := a.jobs.List(ctx)
	if err != nil {
		a.cfg.logger.Error("scheduler wake: list jobs", "error", err)
		a.arm(now.Add(a.cfg.backoff))
		return domain.NewError(domain.ErrStore, "list jobs", err, nil)
	}

	var due, future []*domain.RemarketingJob
	for _, j := range all {
		switch {
		case !j.IsPending():
		case j.IsDue(now):
			due = append(due, j)
		default:
			future = append(future, j)
		}
	}
	a.rearm(future)
	if len(due) == 0 {
		return nil
	}

	for _, at := range a.runDue(ctx, due, now) {
		a.armIfSooner(at)
	}
	return nil
}

// runDue delivers due jobs on a bounded pool and returns the fire times of
// every job that stays scheduled.
func (a *Actor) runDue(ctx context.Context, due []*domain.RemarketingJob, now time.Time) []time.Time {
	var (
		mu    sync.Mutex
		next  []time.Time
		group errgroup.Group
	)
	group.SetLimit(a.cfg.workers)
	for _, job := range due {
		group.Go(func() error {
			if at, ok := a.process(ctx, job, now); ok {
				mu.Lock()
				next = append(next, at)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return next
}

// process delivers one job and settles its bookkeeping. It reports the new
// fire time when the job remains scheduled.
func (a *Actor) process(ctx context.Context, job *domain.RemarketingJob, now time.Time) (time.Time, bool) {
	attempt := job.Attempts + 1
	logger := a.cfg.logger.With("job_id", job.ID, "channel", job.Channel, "attempt", attempt)

	err := a.send(ctx, job)
	if err == nil {
		return a.delivered(ctx, job, attempt, now)
	}

	code, retryAfter := ports.ClassifySendError(err)
	switch code {
	case domain.CodeRateLimited:
		if retryAfter <= 0 {
			retryAfter = a.cfg.backoff
		}
		next := job.Clone()
		next.ScheduledFor = now.Add(retryAfter)
		if !a.persist(ctx, next) {
			return time.Time{}, false
		}
		logger.Warn("delivery rate limited", "retry_after", retryAfter)
		a.publish(domain.EventJobRescheduled, next, attempt, map[string]any{"reason": "rate_limited", "error_code": code})
		return next.ScheduledFor, true

	case domain.CodeBlocked, domain.CodeUnreachable:
		logger.Info("delivery dropped", "code", code, "error", err)
		a.record(ctx, job, attempt, err, code)
		a.remove(ctx, job)
		a.publish(domain.EventJobFailed, job, attempt, map[string]any{"error_code": code, "error": err.Error()})
		return time.Time{}, false

	default:
		logger.Warn("delivery failed", "code", code, "error", err)
		a.record(ctx, job, attempt, err, code)
		if attempt < a.cfg.maxAttempts {
			next := job.Clone()
			next.Attempts = attempt
			next.ScheduledFor = now.Add(time.Duration(attempt) * a.cfg.backoff)
			if !a.persist(ctx, next) {
				return time.Time{}, false
			}
			a.publish(domain.EventJobRescheduled, next, attempt, map[string]any{"reason": "retry", "error_code": code})
			return next.ScheduledFor, true
		}
		a.remove(ctx, job)
		a.publish(domain.EventJobFailed, job, attempt, map[string]any{"error_code": code, "error": err.Error()})
		return time.Time{}, false
	}
}

func (a *Actor) send(ctx context.Context, job *domain.RemarketingJob) (err error) {
	sender, err := a.senders.Lookup(job.Channel)
	if err != nil {
		return ports.Unreachable(err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	sctx, cancel := context.WithTimeout(ctx, a.cfg.sendTimeout)
	defer cancel()
	return deliver(sctx, sender, job)
}

func (a *Actor) delivered(ctx context.Context, job *domain.RemarketingJob, attempt int, now time.Time) (time.Time, bool) {
	a.record(ctx, job, attempt, nil, "")
	a.publish(domain.EventJobDelivered, job, attempt, nil)

	if job.Recurrence == nil {
		a.remove(ctx, job)
		return time.Time{}, false
	}
	at, err := NextOccurrence(job.Recurrence, job.ScheduledFor, now, a.cfg.location)
	if err != nil {
		a.cfg.logger.Error("recurrence dropped", "job_id", job.ID, "error", err)
		a.remove(ctx, job)
		return time.Time{}, false
	}
	next := job.Clone()
	next.ScheduledFor = at
	next.Attempts = 0
	next.Status = domain.JobPending
	if !a.persist(ctx, next) {
		return time.Time{}, false
	}
	a.publish(domain.EventJobRescheduled, next, attempt, map[string]any{"reason": "recurrence"})
	return at, true
}

func (a *Actor) persist(ctx context.Context, job *domain.RemarketingJob) bool {
	if err := a.jobs.Put(ctx, job); err != nil {
		a.cfg.logger.Error("persist job", "job_id", job.ID, "error", err)
		return false
	}
	return true
}

func (a *Actor) remove(ctx context.Context, job *domain.RemarketingJob) {
	if _, err := a.jobs.Delete(ctx, job.ID); err != nil {
		a.cfg.logger.Error("delete job", "job_id", job.ID, "error", err)
	}
}

func (a *Actor) record(ctx context.Context, job *domain.RemarketingJob, attempt int, cause error, code string) {
	entry := domain.OutcomeEntry{
		JobID:      job.ID,
		TenantID:   a.tenant,
		CampaignID: job.CampaignID,
		Channel:    job.Channel,
		Outcome:    domain.OutcomeSuccess,
		Attempt:    attempt,
		OccurredAt: a.cfg.clock.Now(),
	}
	if cause != nil {
		entry.Outcome = domain.OutcomeFailure
		entry.Error = cause.Error()
		entry.ErrorCode = code
	}
	if err := a.outcomes.Append(ctx, entry); err != nil {
		a.cfg.logger.Error("append outcome", "job_id", job.ID, "error", err)
	}
}

func (a *Actor) publish(t domain.EventType, job *domain.RemarketingJob, attempt int, extra map[string]any) {
	payload := map[string]any{
		"job_id":        job.ID,
		"channel":       job.Channel,
		"attempt":       attempt,
		"scheduled_for": job.ScheduledFor,
	}
	if job.CampaignID != "" {
		payload["campaign_id"] = job.CampaignID
	}
	for k, v := range extra {
		payload[k] = v
	}
	botID, _ := job.Payload["bot_id"].(string)
	a.cfg.events.Publish(domain.NewEvent(t, a.tenant, botID, payload))
}

func (a *Actor) arm(at time.Time) {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.armedAt = at
	d := at.Sub(a.cfg.clock.Now())
	if d < 0 {
		d = 0
	}
	a.timer = a.cfg.clock.AfterFunc(d, a.wake)
}

func (a *Actor) disarm() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.armedAt = time.Time{}
}

func (a *Actor) armIfSooner(at time.Time) {
	if a.armedAt.IsZero() || at.Before(a.armedAt) {
		a.arm(at)
	}
}

// rearm points the timer at the earliest pending job, or disarms it.
func (a *Actor) rearm(jobs []*domain.RemarketingJob) {
	var earliest time.Time
	for _, j := range jobs {
		if !j.IsPending() {
			continue
		}
		if earliest.IsZero() || j.ScheduledFor.Before(earliest) {
			earliest = j.ScheduledFor
		}
	}
	if earliest.IsZero() {
		a.disarm()
		return
	}
	a.arm(earliest)
}
