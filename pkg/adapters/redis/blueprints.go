package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/bytedance/sonic"
	backend "github.com/redis/go-redis/v9"
)

// BlueprintStore implements ports.BlueprintStore using Redis. The trigger
// index is kept in the same transaction as the blueprint it points to.
type BlueprintStore struct {
	client *backend.Client
	prefix string
}

// NewBlueprintStore creates a blueprint store under prefix ("" = DefaultPrefix).
func NewBlueprintStore(client *backend.Client, prefix string) *BlueprintStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &BlueprintStore{client: client, prefix: prefix}
}

func (s *BlueprintStore) key(tenantID, id string) string {
	return s.prefix + "blueprint:" + tenantID + ":" + id
}

func (s *BlueprintStore) triggerKey(tenantID, trigger string) string {
	return s.prefix + "trigger-index:" + tenantID + ":" + trigger
}

func (s *BlueprintStore) listKey(tenantID string) string {
	return s.prefix + "blueprints:" + tenantID
}

// Get fetches a blueprint by id.
func (s *BlueprintStore) Get(ctx context.Context, tenantID, id string) (*domain.Blueprint, error) {
	val, err := s.client.Get(ctx, s.key(tenantID, id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrBlueprintNotFound
		}
		return nil, fmt.Errorf("failed to get blueprint from redis: %w", err)
	}
	var bp domain.Blueprint
	if err := sonic.Unmarshal(val, &bp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blueprint: %w", err)
	}
	return &bp, nil
}

// ResolveTrigger maps a trigger phrase to a blueprint id.
func (s *BlueprintStore) ResolveTrigger(ctx context.Context, tenantID, trigger string) (string, error) {
	id, err := s.client.Get(ctx, s.triggerKey(tenantID, trigger)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return "", domain.ErrBlueprintNotFound
		}
		return "", fmt.Errorf("failed to resolve trigger: %w", err)
	}
	return id, nil
}

// Put stores bp and points its trigger at it. A previous trigger of the same
// blueprint is released.
func (s *BlueprintStore) Put(ctx context.Context, bp *domain.Blueprint) error {
	data, err := sonic.Marshal(bp)
	if err != nil {
		return fmt.Errorf("failed to marshal blueprint: %w", err)
	}
	previous, err := s.Get(ctx, bp.TenantID, bp.ID)
	if err != nil && !errors.Is(err, domain.ErrBlueprintNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	if previous != nil && previous.Trigger != bp.Trigger {
		pipe.Del(ctx, s.triggerKey(bp.TenantID, previous.Trigger))
	}
	pipe.Set(ctx, s.key(bp.TenantID, bp.ID), data, 0)
	pipe.Set(ctx, s.triggerKey(bp.TenantID, bp.Trigger), bp.ID, 0)
	pipe.SAdd(ctx, s.listKey(bp.TenantID), bp.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save blueprint to redis: %w", err)
	}
	return nil
}

// Delete removes a blueprint and its trigger entry.
func (s *BlueprintStore) Delete(ctx context.Context, tenantID, id string) error {
	bp, err := s.Get(ctx, tenantID, id)
	if errors.Is(err, domain.ErrBlueprintNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(tenantID, id))
	pipe.Del(ctx, s.triggerKey(tenantID, bp.Trigger))
	pipe.SRem(ctx, s.listKey(tenantID), id)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns the blueprint ids of a tenant in lexical order.
func (s *BlueprintStore) List(ctx context.Context, tenantID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.listKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list blueprints: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
