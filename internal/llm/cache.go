package llm

import (
	"strings"
	"sync"
	"time"
)

// cacheEntry represents a cached provider result.
type cacheEntry struct {
	expiry time.Time
	result Result
}

// resultCache provides thread-safe caching of validated results so identical
// transactions in one run cost a single provider call.
type resultCache struct {
	entries map[string]cacheEntry
	now     func() time.Time
	ttl     time.Duration
	mu      sync.RWMutex
}

// newResultCache creates a new cache with the specified TTL.
func newResultCache(ttl time.Duration) *resultCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	return &resultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// cacheKey identifies a request by provider and transaction content.
func cacheKey(provider string, input Input) string {
	return strings.Join([]string{
		provider,
		strings.ToLower(strings.TrimSpace(input.Merchant)),
		strings.ToLower(strings.TrimSpace(input.Description)),
		input.Amount.String(),
		strings.Join(input.Categories, "\x1f"),
	}, "\x1e")
}

// get retrieves a result if it exists and hasn't expired.
func (c *resultCache) get(key string) (Result, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return Result{}, false
	}
	if c.now().After(entry.expiry) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Result{}, false
	}
	return entry.result, true
}

// set stores a result.
func (c *resultCache) set(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		result: result,
		expiry: c.now().Add(c.ttl),
	}
}

// size returns the number of entries in the cache.
func (c *resultCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
