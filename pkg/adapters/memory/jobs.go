package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
)

// JobStore implements ports.JobStore in memory.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.RemarketingJob
}

// NewJobStore creates an empty job table.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.RemarketingJob)}
}

// Put inserts or replaces the job with the same id.
func (s *JobStore) Put(ctx context.Context, job *domain.RemarketingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the job.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.RemarketingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Delete removes the job and reports whether it existed.
func (s *JobStore) Delete(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	delete(s.jobs, jobID)
	return ok, nil
}

// List returns copies of every job ordered by ScheduledFor, then id.
func (s *JobStore) List(ctx context.Context) ([]*domain.RemarketingJob, error) {
	s.mu.RLock()
	out := make([]*domain.RemarketingJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return out, nil
}

// OutcomeLog implements ports.OutcomeLog in memory.
type OutcomeLog struct {
	mu      sync.RWMutex
	entries []domain.OutcomeEntry
}

// NewOutcomeLog creates an empty log.
func NewOutcomeLog() *OutcomeLog {
	return &OutcomeLog{}
}

// Append records one entry.
func (l *OutcomeLog) Append(ctx context.Context, entry domain.OutcomeEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// List returns matching entries, newest first.
func (l *OutcomeLog) List(ctx context.Context, filter ports.OutcomeFilter) ([]domain.OutcomeEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.OutcomeEntry, 0)
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if filter.JobID != "" && e.JobID != filter.JobID {
			continue
		}
		if filter.CampaignID != "" && e.CampaignID != filter.CampaignID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len reports how many entries were recorded.
func (l *OutcomeLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// SchedulerStorage implements ports.SchedulerStorage with one in-memory job
// table and outcome log per tenant.
type SchedulerStorage struct {
	mu       sync.Mutex
	jobs     map[string]*JobStore
	outcomes map[string]*OutcomeLog
}

// NewSchedulerStorage creates empty scheduler storage.
func NewSchedulerStorage() *SchedulerStorage {
	return &SchedulerStorage{
		jobs:     make(map[string]*JobStore),
		outcomes: make(map[string]*OutcomeLog),
	}
}

// Jobs returns the tenant's job table, creating it on first use.
func (s *SchedulerStorage) Jobs(tenantID string) (ports.JobStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	js, ok := s.jobs[tenantID]
	if !ok {
		js = NewJobStore()
		s.jobs[tenantID] = js
	}
	return js, nil
}

// Outcomes returns the tenant's outcome log, creating it on first use.
func (s *SchedulerStorage) Outcomes(tenantID string) (ports.OutcomeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.outcomes[tenantID]
	if !ok {
		l = NewOutcomeLog()
		s.outcomes[tenantID] = l
	}
	return l, nil
}

// Tenants lists tenants whose job table is not empty.
func (s *SchedulerStorage) Tenants(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for tenant, js := range s.jobs {
		js.mu.RLock()
		n := len(js.jobs)
		js.mu.RUnlock()
		if n > 0 {
			out = append(out, tenant)
		}
	}
	sort.Strings(out)
	return out, nil
}
