// Package rediscache keeps resource projection snapshots and resource locks in
// Redis so several API and worker processes can share them.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
)

const snapshotPrefix = "rea:projection:"

// Cache implements observation.ProjectionCache with JSON values and a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the snapshot cache. A zero ttl keeps snapshots forever.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Load returns the cached projection, if any.
func (c *Cache) Load(ctx context.Context, resourceID string) (observation.EconomicResource, bool, error) {
	payload, err := c.client.Get(ctx, snapshotKey(resourceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return observation.EconomicResource{}, false, nil
	}
	if err != nil {
		return observation.EconomicResource{}, false, fmt.Errorf("rediscache: get %s: %w", resourceID, err)
	}
	var r observation.EconomicResource
	if err := json.Unmarshal(payload, &r); err != nil {
		return observation.EconomicResource{}, false, fmt.Errorf("rediscache: decode %s: %w", resourceID, err)
	}
	return r, true, nil
}

// Save writes every projection in a single transaction.
func (c *Cache) Save(ctx context.Context, resources ...observation.EconomicResource) error {
	if len(resources) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range resources {
			raw, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("rediscache: encode %s: %w", r.ID, err)
			}
			pipe.Set(ctx, snapshotKey(r.ID), raw, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rediscache: save: %w", err)
	}
	return nil
}

// Invalidate drops the given projections.
func (c *Cache) Invalidate(ctx context.Context, resourceIDs ...string) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(resourceIDs))
	for _, id := range resourceIDs {
		keys = append(keys, snapshotKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rediscache: invalidate: %w", err)
	}
	return nil
}

func snapshotKey(resourceID string) string {
	return snapshotPrefix + resourceID
}
