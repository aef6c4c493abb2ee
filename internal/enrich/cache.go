package enrich

import "sync"

// Outcome is the value form of a completed fetch: either a positive value or
// a confirmed negative. A negative cost a network round trip to establish and
// is cached with the same weight as a positive hit.
type Outcome[V any] struct {
	Value V
	Found bool
}

// Hit wraps a positive fetch result.
func Hit[V any](v V) Outcome[V] {
	return Outcome[V]{Value: v, Found: true}
}

// Negative is a confirmed not-found result.
func Negative[V any]() Outcome[V] {
	return Outcome[V]{}
}

// Cache is a run-scoped concurrent map from fetch keys to outcomes. Lookups
// distinguish miss, positive hit, and negative hit; callers never mutate a
// stored outcome. There is no eviction: entries live for the process run.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]Outcome[V]
}

// NewCache builds an empty cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]Outcome[V])}
}

// Lookup returns the cached outcome and whether the key was present at all.
func (c *Cache[K, V]) Lookup(key K) (Outcome[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.entries[key]
	return out, ok
}

// Store records an outcome, positive or negative, for the key.
func (c *Cache[K, V]) Store(key K, out Outcome[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = out
}

// Len reports the number of cached keys, for diagnostics.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
