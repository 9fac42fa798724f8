package memory

import (
	"context"
	"sort"
	"sync"
)

// MembershipStore implements ports.MembershipStore in memory.
type MembershipStore struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
}

// NewMembershipStore creates an empty audience registry.
func NewMembershipStore() *MembershipStore {
	return &MembershipStore{members: make(map[string]map[string]struct{})}
}

// Add records chatID as part of the bot's audience. Adding twice is a no-op.
func (s *MembershipStore) Add(ctx context.Context, tenantID, botID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantID + ":" + botID
	set, ok := s.members[key]
	if !ok {
		set = make(map[string]struct{})
		s.members[key] = set
	}
	set[chatID] = struct{}{}
	return nil
}

// Members returns the audience of a bot in lexical order.
func (s *MembershipStore) Members(ctx context.Context, tenantID, botID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.members[tenantID+":"+botID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
