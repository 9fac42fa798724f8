package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/botflow/pkg/domain"
)

// BlueprintStore implements ports.BlueprintStore in memory, with a trigger index
// maintained alongside the definitions.
type BlueprintStore struct {
	mu       sync.RWMutex
	items    map[string]*domain.Blueprint // blueprint:{tenant}:{id}
	triggers map[string]string            // trigger-index:{tenant}:{trigger} -> id
}

// NewBlueprintStore creates an empty store, optionally seeded with blueprints.
func NewBlueprintStore(seed ...*domain.Blueprint) *BlueprintStore {
	s := &BlueprintStore{
		items:    make(map[string]*domain.Blueprint),
		triggers: make(map[string]string),
	}
	for _, bp := range seed {
		_ = s.Put(context.Background(), bp)
	}
	return s
}

func blueprintKey(tenantID, id string) string {
	return "blueprint:" + tenantID + ":" + id
}

func triggerKey(tenantID, trigger string) string {
	return "trigger-index:" + tenantID + ":" + trigger
}

// Get returns a copy of the blueprint.
func (s *BlueprintStore) Get(ctx context.Context, tenantID, blueprintID string) (*domain.Blueprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bp, ok := s.items[blueprintKey(tenantID, blueprintID)]
	if !ok {
		return nil, domain.ErrBlueprintNotFound
	}
	return bp.Clone(), nil
}

// ResolveTrigger returns the blueprint id currently bound to trigger.
func (s *BlueprintStore) ResolveTrigger(ctx context.Context, tenantID, trigger string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.triggers[triggerKey(tenantID, trigger)]
	if !ok {
		return "", domain.ErrBlueprintNotFound
	}
	return id, nil
}

// Put stores the blueprint and rebinds its trigger.
// A previous trigger of the same blueprint is unbound if it still points here.
func (s *BlueprintStore) Put(ctx context.Context, bp *domain.Blueprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := blueprintKey(bp.TenantID, bp.ID)
	if prev, ok := s.items[key]; ok && prev.Trigger != bp.Trigger {
		tk := triggerKey(prev.TenantID, prev.Trigger)
		if s.triggers[tk] == bp.ID {
			delete(s.triggers, tk)
		}
	}
	s.items[key] = bp.Clone()
	s.triggers[triggerKey(bp.TenantID, bp.Trigger)] = bp.ID
	return nil
}

// BindTrigger points a trigger at an arbitrary blueprint id without touching the
// definition. Used to reproduce stale index entries.
func (s *BlueprintStore) BindTrigger(tenantID, trigger, blueprintID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[triggerKey(tenantID, trigger)] = blueprintID
}

// Delete removes the blueprint and its trigger binding.
func (s *BlueprintStore) Delete(ctx context.Context, tenantID, blueprintID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := blueprintKey(tenantID, blueprintID)
	bp, ok := s.items[key]
	if !ok {
		return nil
	}
	tk := triggerKey(tenantID, bp.Trigger)
	if s.triggers[tk] == blueprintID {
		delete(s.triggers, tk)
	}
	delete(s.items, key)
	return nil
}

// List returns the blueprint ids of a tenant in lexical order.
func (s *BlueprintStore) List(ctx context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for _, bp := range s.items {
		if bp.TenantID == tenantID {
			ids = append(ids, bp.ID)
		}
	}
	sort.Strings(ids) // Deterministic order
	return ids, nil
}
