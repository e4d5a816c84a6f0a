// Package cache holds the query cache for listing views. It is an explicit
// object handed to whichever component needs lookups or invalidation, with
// its lifecycle tied to application startup, rather than ambient global
// state. Keys are resource paths, e.g. "lots" or "lots?park=sunny-acres".
package cache

import (
	"strings"
	"sync"
)

// QueryCache is a concurrency-safe map of resource path to cached payload
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

// New returns an empty cache.
func New() *QueryCache {
	return &QueryCache{entries: make(map[string]interface{})}
}

// Get returns the cached payload for a key, if present.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores a payload under a key, replacing any previous entry.
func (c *QueryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Invalidate removes a single key.
func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateResource removes every key for a resource, including filtered
// variants ("lots", "lots?park=..."). Raised after a successful import so
// listing views reflect the new data.
func (c *QueryCache) InvalidateResource(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key == resource || strings.HasPrefix(key, resource+"?") {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of cached entries.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
