package resolver

import (
	"sync"
	"time"

	"github.com/alvarorichard/Gostream/internal/anime"
)

// IdentityCache memoizes catalog-to-provider identity lookups. It is an
// explicit dependency of the resolver, injected at construction, so its
// lifetime and contents are owned by whoever built the resolver.
type IdentityCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	identity anime.Identity
	storedAt time.Time
}

// NewIdentityCache builds a cache whose entries expire after ttl.
func NewIdentityCache(ttl time.Duration) *IdentityCache {
	return &IdentityCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached identity for a catalog ID, if still fresh.
func (c *IdentityCache) Get(catalogID string) (*anime.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[catalogID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, catalogID)
		return nil, false
	}
	id := entry.identity
	return &id, true
}

// Put stores an identity under a catalog ID.
func (c *IdentityCache) Put(catalogID string, id anime.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[catalogID] = cacheEntry{identity: id, storedAt: c.now()}
}
