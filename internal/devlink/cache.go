package devlink

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a read-only command result stays fresh.
// Mutating commands invalidate the whole cache; the residual staleness
// window between an external change and TTL expiry is an accepted tradeoff.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	result     *CommandResult
	insertedAt time.Time
}

// responseCache is a TTL cache of read-only command results, keyed by the
// exact command string.
type responseCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// get returns a copy of the cached result for the command, if still fresh
func (c *responseCache) get(command string) (*CommandResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[command]
	if !ok || time.Since(entry.insertedAt) > c.ttl {
		return nil, false
	}
	cached := *entry.result
	return &cached, true
}

// put stores a result for the command with the current timestamp
func (c *responseCache) put(command string, result *CommandResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *result
	c.entries[command] = cacheEntry{result: &stored, insertedAt: time.Now()}
}

// invalidateAll drops every entry. Called after any mutating command, since
// there is no way to know which listings the mutation affected.
func (c *responseCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}
