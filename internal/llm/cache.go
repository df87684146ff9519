package llm

import (
	"sync"
	"time"
)

// cacheEntry holds a cached match outcome.
type cacheEntry struct {
	expiry  time.Time
	outcome MatchOutcome
}

// matchCache provides thread-safe caching for semantic match outcomes.
// Expired entries are dropped lazily on read and by prune.
type matchCache struct {
	entries map[string]cacheEntry
	now     func() time.Time
	ttl     time.Duration
	mu      sync.RWMutex
}

func newMatchCache(ttl time.Duration) *matchCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &matchCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *matchCache) get(key string) (MatchOutcome, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return MatchOutcome{}, false
	}
	if c.now().After(entry.expiry) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return MatchOutcome{}, false
	}
	return entry.outcome, true
}

func (c *matchCache) set(key string, outcome MatchOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		outcome: outcome,
		expiry:  c.now().Add(c.ttl),
	}
}

// prune removes expired entries and returns how many remain.
func (c *matchCache) prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
	return len(c.entries)
}

func (c *matchCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
