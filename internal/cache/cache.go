// Package cache provides the LRU-with-TTL caches fronting every provider
// client, keyed by each request's semantic fingerprint. Cache hits bypass
// the rate limiter entirely.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// TTLCache is a bounded, TTL-evicting, concurrency-safe cache.
type TTLCache[V any] struct {
	inner *lru.LRU[string, V]
}

// New constructs a cache with the given entry cap and TTL.
func New[V any](size int, ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{inner: lru.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value for key, if present and unexpired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	return c.inner.Get(key)
}

// Put stores value under key.
func (c *TTLCache[V]) Put(key string, value V) {
	c.inner.Add(key, value)
}

// Len reports the current number of live entries.
func (c *TTLCache[V]) Len() int {
	return c.inner.Len()
}
