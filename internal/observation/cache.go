package observation

import (
	"context"
	"sync"
)

// MemoryCache is an in-process ProjectionCache.
type MemoryCache struct {
	mu        sync.RWMutex
	snapshots map[string]EconomicResource
}

// NewMemoryCache constructs MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{snapshots: make(map[string]EconomicResource)}
}

// Load returns the cached projection, if any.
func (c *MemoryCache) Load(_ context.Context, resourceID string) (EconomicResource, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.snapshots[resourceID]
	if !ok {
		return EconomicResource{}, false, nil
	}
	return r.Clone(), true, nil
}

// Save stores every projection.
func (c *MemoryCache) Save(_ context.Context, resources ...EconomicResource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		c.snapshots[r.ID] = r.Clone()
	}
	return nil
}

// Invalidate drops the given projections.
func (c *MemoryCache) Invalidate(_ context.Context, resourceIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range resourceIDs {
		delete(c.snapshots, id)
	}
	return nil
}
