package memory

import (
	"context"
	"sync"

	"github.com/aretw0/botflow/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.SessionData
	mu   sync.RWMutex
}

// NewStore creates a new in-memory session store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.SessionData),
	}
}

// Save persists the session in memory.
func (s *Store) Save(ctx context.Context, session *domain.SessionData) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[session.Key().String()] = copied
	return nil
}

// Load retrieves the session from memory.
func (s *Store) Load(ctx context.Context, key domain.SessionKey) (*domain.SessionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[key.String()]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	// Copy on read so callers can't mutate store state by pointer
	return session.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key.String())
	return nil
}

// PurgeTenant removes every session belonging to tenantID.
func (s *Store) PurgeTenant(ctx context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, session := range s.data {
		if session.TenantID == tenantID {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}
