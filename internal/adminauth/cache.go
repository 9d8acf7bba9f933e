package adminauth

import "sync"

// verifiedCache remembers the lookup hashes of keys that have already
// passed a full Store.Verify this process's lifetime, so repeat requests
// from the same caller skip the ~60ms bcrypt comparison on every call.
// Grounded on InMemoryKeyStore's thread-safe map-of-copies pattern, but
// narrowed to the one field the hot path needs: has this lookup hash
// already been verified, and under which key ID.
type verifiedCache struct {
	mu     sync.RWMutex
	byHash map[string]string // lookupHash -> keyID
}

func newVerifiedCache() *verifiedCache {
	return &verifiedCache{byHash: make(map[string]string)}
}

// Check reports whether lookupHash was previously verified, requiring
// the presented plaintext's lookup hash to match via constant-time
// comparison (defense against a cache keyed by attacker-controlled
// timing).
func (c *verifiedCache) Check(lookupHash string) (keyID string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for cachedHash, id := range c.byHash {
		if secureCompare(cachedHash, lookupHash) {
			return id, true
		}
	}

	return "", false
}

// Remember records a successfully verified key.
func (c *verifiedCache) Remember(lookupHash, keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byHash[lookupHash] = keyID
}

// Forget removes a key from the cache, called on Revoke so a revoked key
// stops short-circuiting Verify.
func (c *verifiedCache) Forget(lookupHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.byHash, lookupHash)
}
