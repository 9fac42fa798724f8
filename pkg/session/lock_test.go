package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/botflow/pkg/domain"
)

// MockStore structure
type MockStore struct{}

func (m *MockStore) Save(ctx context.Context, s *domain.SessionData) error { return nil }
func (m *MockStore) Load(ctx context.Context, key domain.SessionKey) (*domain.SessionData, error) {
	return nil, domain.ErrSessionNotFound
}
func (m *MockStore) Delete(ctx context.Context, key domain.SessionKey) error  { return nil }
func (m *MockStore) PurgeTenant(ctx context.Context, tenant string) (int, error) { return 0, nil }

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(&MockStore{})
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		key := domain.SessionKey{TenantID: "t", Provider: "telegram", UserID: fmt.Sprintf("user-%d", i)}
		_ = mgr.Save(ctx, domain.NewSession(key))
		_ = mgr.Delete(ctx, key)
	}

	lockCount := len(mgr.locks)
	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
