// Package cache is the reconciliation cache: a content-addressed store of
// facts derived from immutable on-chain state. Entity bodies are append-only
// and never evicted or overwritten; id-resolution entries sit behind an LRU
// cap. Concurrent writers racing on one key are benign because the value for
// a given key is invariant.
package cache

import (
	"sync"

	"payables-relay/internal/models"
)

// EntityKey addresses a canonical entity body.
type EntityKey struct {
	Chain string
	Kind  models.Kind
	ID    string
}

// IDKey addresses a resolved entity id by owner and 1-based count.
type IDKey struct {
	Chain string
	Owner string
	Kind  models.Kind
	Count uint64
}

// DefaultIDCapacity bounds the id-resolution LRU.
const DefaultIDCapacity = 16384

// Cache is safe for concurrent use within one process.
type Cache struct {
	mu     sync.RWMutex
	bodies map[EntityKey]interface{}
	ids    *lru[IDKey, string]
}

// New creates a cache with idCapacity slots for id-resolution entries.
// idCapacity <= 0 uses DefaultIDCapacity.
func New(idCapacity int) *Cache {
	if idCapacity <= 0 {
		idCapacity = DefaultIDCapacity
	}
	return &Cache{
		bodies: make(map[EntityKey]interface{}),
		ids:    newLRU[IDKey, string](idCapacity),
	}
}

// GetEntity returns the cached canonical body for key.
func (c *Cache) GetEntity(key EntityKey) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.bodies[key]
	return v, ok
}

// PutEntity stores a canonical body. First write wins; bodies are immutable
// so a repeat write carries the same value and is dropped.
func (c *Cache) PutEntity(key EntityKey, body interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.bodies[key]; ok {
		return
	}
	c.bodies[key] = body
}

// GetID returns the cached resolved id for key.
func (c *Cache) GetID(key IDKey) (string, bool) {
	return c.ids.Get(key)
}

// PutID stores a resolved id.
func (c *Cache) PutID(key IDKey, id string) {
	c.ids.Put(key, id)
}

// Len returns the number of cached entity bodies and id entries.
func (c *Cache) Len() (bodies, ids int) {
	c.mu.RLock()
	bodies = len(c.bodies)
	c.mu.RUnlock()
	return bodies, c.ids.Len()
}

// IDStats returns hit/miss counts for the id-resolution LRU.
func (c *Cache) IDStats() (hits, misses int64) {
	return c.ids.Stats()
}
