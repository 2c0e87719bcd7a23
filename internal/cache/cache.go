// Package cache provides a size-bounded TTL cache for the serve API's
// response payloads, so repeated polling by dashboards does not re-encode
// the same run on every request.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TTLCache is a thread-safe LRU cache whose entries expire after a fixed
// duration. A TTL of 0 disables expiration.
type TTLCache[K comparable, V any] struct {
	inner *lru.Cache[K, *entry[V]]
	ttl   time.Duration

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New builds a cache holding at most size entries.
func New[K comparable, V any](size int, ttl time.Duration) (*TTLCache[K, V], error) {
	inner, err := lru.New[K, *entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[K, V]{inner: inner, ttl: ttl}, nil
}

// Get returns the cached value if present and unexpired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	e, ok := c.inner.Get(key)
	if ok && (c.ttl == 0 || time.Now().Before(e.expiresAt)) {
		c.count(&c.hits)
		return e.value, true
	}
	if ok {
		c.inner.Remove(key)
	}
	c.count(&c.misses)
	var zero V
	return zero, false
}

// Set stores a value, evicting the least recently used entry when full.
func (c *TTLCache[K, V]) Set(key K, value V) {
	var expires time.Time
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}
	c.inner.Add(key, &entry[V]{value: value, expiresAt: expires})
}

// Invalidate drops every entry, used when a new run is published.
func (c *TTLCache[K, V]) Invalidate() {
	c.inner.Purge()
}

// Len returns the live entry count.
func (c *TTLCache[K, V]) Len() int { return c.inner.Len() }

// Stats are hit/miss counters for observability.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// Stats returns a snapshot of the counters.
func (c *TTLCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.inner.Len()}
}

func (c *TTLCache[K, V]) count(field *uint64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}
