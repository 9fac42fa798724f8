package ports

import (
	"context"

	"github.com/aretw0/botflow/pkg/domain"
)

// SessionStore defines the interface for persisting conversation state.
// It needs no transactions: the engine performs read-modify-write within one execution.
type SessionStore interface {
	// Load retrieves the session for a key.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, key domain.SessionKey) (*domain.SessionData, error)

	// Save persists the session (last write wins).
	Save(ctx context.Context, session *domain.SessionData) error

	// Delete removes a single session.
	Delete(ctx context.Context, key domain.SessionKey) error

	// PurgeTenant removes every session of a tenant and returns how many were removed.
	PurgeTenant(ctx context.Context, tenantID string) (int, error)
}

// BlueprintStore defines durable storage for flow definitions.
type BlueprintStore interface {
	// Get returns the blueprint with the given id.
	// Returns domain.ErrBlueprintNotFound if it does not exist.
	Get(ctx context.Context, tenantID, blueprintID string) (*domain.Blueprint, error)

	// ResolveTrigger looks the trigger index up and returns the blueprint id.
	// Returns domain.ErrBlueprintNotFound when no blueprint is bound to the trigger.
	ResolveTrigger(ctx context.Context, tenantID, trigger string) (string, error)

	// Put stores the blueprint and points its trigger index entry at it.
	Put(ctx context.Context, blueprint *domain.Blueprint) error

	// Delete removes the blueprint and the index entry that still points at it.
	Delete(ctx context.Context, tenantID, blueprintID string) error

	// List returns the blueprint ids of a tenant in lexical order.
	List(ctx context.Context, tenantID string) ([]string, error)
}

// JobStore is the private job table of one scheduler actor.
type JobStore interface {
	Put(ctx context.Context, job *domain.RemarketingJob) error

	// Get returns domain.ErrJobNotFound if the job does not exist.
	Get(ctx context.Context, jobID string) (*domain.RemarketingJob, error)

	// Delete reports whether a job was removed.
	Delete(ctx context.Context, jobID string) (bool, error)

	// List returns every persisted job ordered by ScheduledFor.
	List(ctx context.Context) ([]*domain.RemarketingJob, error)
}

// OutcomeFilter narrows OutcomeLog queries. Zero values match everything.
type OutcomeFilter struct {
	JobID      string
	CampaignID string
	Limit      int
}

// OutcomeLog records delivery attempts of one scheduler actor.
type OutcomeLog interface {
	Append(ctx context.Context, entry domain.OutcomeEntry) error

	// List returns matching entries, newest first.
	List(ctx context.Context, filter OutcomeFilter) ([]domain.OutcomeEntry, error)
}

// MembershipStore tracks the audience of a bot: the chat ids it can address,
// one per conversation that interacted with it.
type MembershipStore interface {
	Add(ctx context.Context, tenantID, botID, chatID string) error
	Members(ctx context.Context, tenantID, botID string) ([]string, error)
}

// SchedulerStorage hands every scheduler actor its private, tenant-scoped tables.
type SchedulerStorage interface {
	Jobs(tenantID string) (JobStore, error)
	Outcomes(tenantID string) (OutcomeLog, error)

	// Tenants lists the tenants that still have persisted jobs, for restore on boot.
	Tenants(ctx context.Context) ([]string, error)
}
