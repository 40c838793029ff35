package verifier

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"
)

// ErrKeyNotFound is returned by a KeyFetcher when the issuer does not know the key id.
var ErrKeyNotFound = errors.New("verification key not found")

// CachedKey is a verification key and its expiry. A non-nil ExpiredAt marks
// a rotated-out key that must never be accepted.
type CachedKey struct {
	Key       *ecdsa.PublicKey
	ExpiredAt *int64
}

// Expired reports whether the issuer has retired the key.
func (k CachedKey) Expired() bool {
	return k.ExpiredAt != nil
}

// KeyFetcher retrieves the key for a key id from the issuing service.
type KeyFetcher interface {
	FetchKey(ctx context.Context, clientID, clientSecret, kid string) (CachedKey, error)
}

// KeyCache maps key id to key. It is safe for concurrent use and grows
// without bound; issuers rotate keys rarely.
type KeyCache struct {
	mu   sync.RWMutex
	keys map[string]CachedKey
}

func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[string]CachedKey)}
}

func (c *KeyCache) Get(kid string) (CachedKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[kid]
	return k, ok
}

func (c *KeyCache) Put(kid string, key CachedKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[kid] = key
}

// Unexpired lists the ids of cached keys that have not been retired.
func (c *KeyCache) Unexpired() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.keys))
	for kid, k := range c.keys {
		if !k.Expired() {
			ids = append(ids, kid)
		}
	}
	return ids
}

func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}
