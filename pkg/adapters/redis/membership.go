package redis

import (
	"context"
	"fmt"
	"sort"

	backend "github.com/redis/go-redis/v9"
)

// MembershipStore implements ports.MembershipStore with one Redis set per bot.
type MembershipStore struct {
	client *backend.Client
	prefix string
}

// NewMembershipStore creates an audience registry under prefix ("" = DefaultPrefix).
func NewMembershipStore(client *backend.Client, prefix string) *MembershipStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &MembershipStore{client: client, prefix: prefix}
}

func (s *MembershipStore) key(tenantID, botID string) string {
	return s.prefix + "audience:" + tenantID + ":" + botID
}

// Add records chatID as part of the bot's audience.
func (s *MembershipStore) Add(ctx context.Context, tenantID, botID, chatID string) error {
	if err := s.client.SAdd(ctx, s.key(tenantID, botID), chatID).Err(); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// Members returns the audience of a bot in lexical order.
func (s *MembershipStore) Members(ctx context.Context, tenantID, botID string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key(tenantID, botID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	sort.Strings(members)
	return members, nil
}
