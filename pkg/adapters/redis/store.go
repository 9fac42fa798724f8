package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/bytedance/sonic"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "botflow:"

// Store implements ports.SessionStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis session store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(NewClient(address, password, db), opts...)
}

// NewClient builds the client shared by the adapters of this package.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// NewFromClient creates a session store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(k domain.SessionKey) string {
	return s.prefix + k.String()
}

// tenantIndex tracks every session key of a tenant so it can be purged
// without a keyspace scan.
func (s *Store) tenantIndex(tenantID string) string {
	return s.prefix + "tenant-sessions:" + tenantID
}

// Save persists the session, refreshing its TTL.
func (s *Store) Save(ctx context.Context, session *domain.SessionData) error {
	key := session.Key()
	if err := key.Validate(); err != nil {
		return err
	}
	data, err := sonic.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(key), data, s.ttl)
	pipe.SAdd(ctx, s.tenantIndex(key.TenantID), s.key(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Load retrieves the session.
func (s *Store) Load(ctx context.Context, key domain.SessionKey) (*domain.SessionData, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session domain.SessionData
	if err := sonic.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.CollectedData == nil {
		session.CollectedData = make(map[string]any)
	}
	return &session, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(key))
	pipe.SRem(ctx, s.tenantIndex(key.TenantID), s.key(key))
	_, err := pipe.Exec(ctx)
	return err
}

// PurgeTenant deletes every session of a tenant and reports how many existed.
func (s *Store) PurgeTenant(ctx context.Context, tenantID string) (int, error) {
	index := s.tenantIndex(tenantID)
	keys, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read tenant index: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.Del(ctx, index)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to purge tenant: %w", err)
	}
	return int(del.Val()), nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
