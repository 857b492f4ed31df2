package explorer

import (
	"sync"
	"time"
)

// TTLCache is a mutex-guarded cache of prerequisite lists keyed by
// concept name. Entries expire after a fixed TTL; an expired read
// counts as a miss and evicts the entry.
type TTLCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is swappable for tests.
	now func() time.Time
}

type cacheEntry struct {
	prereqs  []string
	storedAt time.Time
}

// NewTTLCache creates a cache with the given entry lifetime.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached prerequisite list for a concept, or false on
// a miss. Reading an expired entry evicts it.
func (c *TTLCache) Get(concept string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[concept]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, concept)
		return nil, false
	}

	out := make([]string, len(entry.prereqs))
	copy(out, entry.prereqs)
	return out, true
}

// Put stores a prerequisite list for a concept.
func (c *TTLCache) Put(concept string, prereqs []string) {
	stored := make([]string, len(prereqs))
	copy(stored, prereqs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[concept] = cacheEntry{prereqs: stored, storedAt: c.now()}
}

// Len returns the number of live entries, expired ones included until
// they are read.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
