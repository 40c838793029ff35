package secrets

import (
	"context"
	"sync"
	"time"
)

// Cached wraps a Provider and memoises successful lookups for ttl.
// Errors are not cached.
type Cached struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	bundle    Bundle
	expiresAt time.Time
}

func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cached) Get(ctx context.Context, provider string) (Bundle, error) {
	if c.ttl <= 0 {
		return c.next.Get(ctx, provider)
	}

	c.mu.RLock()
	entry, ok := c.entries[provider]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.bundle, nil
	}

	b, err := c.next.Get(ctx, provider)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[provider] = cacheEntry{bundle: b, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return b, nil
}
