// Package memo is a small in-process TTL cache used for idempotence memos
// (monthly grant checks), refresh cooldowns and statistics results. It is an
// optimization only; callers must fall back to their authoritative source on
// a miss.
package memo

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

type Cache struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

func New() *Cache {
	return &Cache{items: make(map[string]entry), now: time.Now}
}

// Get returns the cached value and whether it is present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// TTL returns the remaining lifetime of key, or zero when absent or expired.
func (c *Cache) TTL(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return 0
	}
	rem := e.expiresAt.Sub(c.now())
	if rem < 0 {
		return 0
	}
	return rem
}
