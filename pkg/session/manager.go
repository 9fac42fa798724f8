package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed holder can keep a distributed lock.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

type heldKey struct{}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
//
// Locking is re-entrant per context: calls made with the context handed to a
// WithLock callback do not try to take the same key again.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL for distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// GetOrCreate loads the session, or returns a fresh unsaved one when absent.
func (m *Manager) GetOrCreate(ctx context.Context, key domain.SessionKey) (*domain.SessionData, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var session *domain.SessionData
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		session, err = m.store.Load(ctx, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to load session %s: %w", key, err)
		}
		session = domain.NewSession(key)
		return nil
	})
	return session, err
}

// Update applies mutator to the current session (created if absent) and persists the result.
func (m *Manager) Update(ctx context.Context, key domain.SessionKey, mutator func(*domain.SessionData) error) (*domain.SessionData, error) {
	var session *domain.SessionData
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		session, err = m.GetOrCreate(ctx, key)
		if err != nil {
			return err
		}
		if mutator != nil {
			if err := mutator(session); err != nil {
				return err
			}
		}
		return m.save(ctx, session)
	})
	return session, err
}

// Save persists the session, stamping UpdatedAt.
func (m *Manager) Save(ctx context.Context, session *domain.SessionData) error {
	return m.WithLock(ctx, session.Key(), func(ctx context.Context) error {
		return m.save(ctx, session)
	})
}

// Record persists the session keeping its UpdatedAt, for bookkeeping writes
// that must not count as activity. A session never saved is stamped.
func (m *Manager) Record(ctx context.Context, session *domain.SessionData) error {
	return m.WithLock(ctx, session.Key(), func(ctx context.Context) error {
		if session.UpdatedAt.IsZero() {
			session.UpdatedAt = m.now().UTC()
		}
		if err := m.store.Save(ctx, session); err != nil {
			return fmt.Errorf("failed to save session %s: %w", session.Key(), err)
		}
		return nil
	})
}

func (m *Manager) save(ctx context.Context, session *domain.SessionData) error {
	session.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.Key(), err)
	}
	return nil
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, key domain.SessionKey) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
}

// PurgeTenant delegates to the store. It does not take per-user locks.
func (m *Manager) PurgeTenant(ctx context.Context, tenantID string) (int, error) {
	n, err := m.store.PurgeTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	m.logger.Info("tenant sessions purged", "tenant", tenantID, "count", n)
	return n, nil
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// WithLock executes fn while holding the lock for the user key.
func (m *Manager) WithLock(ctx context.Context, key domain.SessionKey, fn func(context.Context) error) error {
	id := key.String()
	if held, _ := ctx.Value(heldKey{}).(map[string]bool); held[id] {
		return fn(ctx)
	}

	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session", id,
					"err", err,
				)
			}
		}()
	}

	return fn(withHeld(ctx, id))
}

func withHeld(ctx context.Context, id string) context.Context {
	prev, _ := ctx.Value(heldKey{}).(map[string]bool)
	next := make(map[string]bool, len(prev)+1)
	for k := range prev {
		next[k] = true
	}
	next[id] = true
	return context.WithValue(ctx, heldKey{}, next)
}
