package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
)

// Hub owns one Actor per tenant. It satisfies actions.JobScheduler, so flows
// can schedule jobs without knowing about sharding.
type Hub struct {
	storage ports.SchedulerStorage
	senders actions.Senders
	opts    []Option
	cfg     config

	mu       sync.Mutex
	ctx      context.Context
	actors   map[string]*Actor
	starting map[string]*pendingActor
	stopped  bool
}

// pendingActor is a tenant actor being opened and restored. done closes once
// actor or err is set.
type pendingActor struct {
	done  chan struct{}
	actor *Actor
	err   error
}

// NewHub creates a hub. Options are applied to every actor it creates.
func NewHub(storage ports.SchedulerStorage, senders actions.Senders, opts ...Option) *Hub {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Hub{
		storage: storage,
		senders: senders,
		opts:    opts,
		cfg:     cfg,
		ctx:     context.Background(),
		actors:   make(map[string]*Actor),
		starting: make(map[string]*pendingActor),
	}
}

// Start restores an actor for every tenant that has persisted jobs.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = context.WithoutCancel(ctx)
	h.mu.Unlock()

	tenants, err := h.storage.Tenants(ctx)
	if err != nil {
		return fmt.Errorf("list scheduler tenants: %w", err)
	}
	var errs []error
	for _, tenant := range tenants {
		if _, err := h.Actor(ctx, tenant); err != nil {
			errs = append(errs, err)
		}
	}
	h.cfg.logger.Info("scheduler hub started", "tenants", len(tenants))
	return errors.Join(errs...)
}

// Actor returns the tenant's actor, creating and starting it on first use.
// Opening and restoring a tenant runs outside the hub lock; concurrent callers
// for the same tenant wait for the first one.
func (h *Hub) Actor(ctx context.Context, tenantID string) (*Actor, error) {
	if tenantID == "" {
		return nil, domain.NewError(domain.ErrInvalidJob, "tenant id is required", nil, nil)
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil, ErrStopped
	}
	if a, ok := h.actors[tenantID]; ok {
		h.mu.Unlock()
		return a, nil
	}
	if p, ok := h.starting[tenantID]; ok {
		h.mu.Unlock()
		select {
		case <-p.done:
			return p.actor, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingActor{done: make(chan struct{})}
	h.starting[tenantID] = p
	runCtx := h.ctx
	h.mu.Unlock()

	defer close(p.done)
	a, err := h.startActor(ctx, runCtx, tenantID)

	h.mu.Lock()
	delete(h.starting, tenantID)
	stopped := h.stopped
	if err == nil && !stopped {
		h.actors[tenantID] = a
	}
	h.mu.Unlock()

	if err == nil && stopped {
		_ = a.Stop(ctx)
		err = ErrStopped
	}
	if err != nil {
		p.err = err
		return nil, err
	}
	p.actor = a
	return a, nil
}

func (h *Hub) startActor(ctx, runCtx context.Context, tenantID string) (*Actor, error) {
	jobs, err := h.storage.Jobs(tenantID)
	if err != nil {
		return nil, fmt.Errorf("open job store for %s: %w", tenantID, err)
	}
	outcomes, err := h.storage.Outcomes(tenantID)
	if err != nil {
		return nil, fmt.Errorf("open outcome log for %s: %w", tenantID, err)
	}
	a := NewActor(tenantID, jobs, outcomes, h.senders, h.opts...)
	if err := a.Start(runCtx); err != nil {
		_ = a.Stop(ctx)
		return nil, err
	}
	return a, nil
}

// Tenants lists the tenants with a running actor.
func (h *Hub) Tenants() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.actors))
	for tenant := range h.actors {
		out = append(out, tenant)
	}
	return out
}

// Schedule routes job to the actor of job.TenantID.
func (h *Hub) Schedule(ctx context.Context, job *domain.RemarketingJob) (domain.ScheduleResult, error) {
	if job == nil {
		return domain.ScheduleResult{}, domain.NewError(domain.ErrInvalidJob, "job is nil", nil, nil)
	}
	a, err := h.Actor(ctx, job.TenantID)
	if err != nil {
		return domain.ScheduleResult{}, err
	}
	return a.Schedule(ctx, job)
}

// Cancel deletes a job from the tenant's actor.
func (h *Hub) Cancel(ctx context.Context, tenantID, jobID string) (domain.CancelResult, error) {
	a, err := h.Actor(ctx, tenantID)
	if err != nil {
		return domain.CancelResult{}, err
	}
	return a.Cancel(ctx, jobID)
}

// Handle forwards a command to the tenant's actor.
func (h *Hub) Handle(ctx context.Context, tenantID string, req Request) Response {
	a, err := h.Actor(ctx, tenantID)
	if err != nil {
		return Response{
			Version:       ProtocolVersion,
			CorrelationID: req.CorrelationID,
			Error:         domain.ErrorMessage(err),
			Code:          domain.ErrorCode(err),
		}
	}
	return a.Handle(ctx, req)
}

// Stop stops every actor. The hub cannot be restarted.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	actors := make([]*Actor, 0, len(h.actors))
	for _, a := range h.actors {
		actors = append(actors, a)
	}
	h.mu.Unlock()

	var errs []error
	for _, a := range actors {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", a.TenantID(), err))
		}
	}
	return errors.Join(errs...)
}
