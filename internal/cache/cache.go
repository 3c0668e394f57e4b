package cache

import (
	"sync"
	"time"

	"github.com/SejinDoesArt/twittertruefriends/internal/model"
)

// DefaultTTL matches the original ten-minute freshness window.
const DefaultTTL = 600 * time.Second

type item struct {
	result  model.RankedResult
	expires time.Time
}

// Cache memoizes one RankedResult per authenticated user with a fixed
// TTL. Entries expire lazily on read and are never invalidated
// explicitly. Safe for concurrent use across in-flight requests; no
// capacity bound beyond one entry per user.
type Cache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]item
}

// New creates a cache with the given TTL. A zero ttl means DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, now: time.Now, items: make(map[string]item)}
}

// SetClock injects a clock for TTL tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached result for userID, or ok=false if absent or
// past its TTL. An expired entry is evicted on read.
func (c *Cache) Get(userID string) (model.RankedResult, bool) {
	c.mu.RLock()
	it, ok := c.items[userID]
	now := c.now()
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.After(it.expires) {
		c.mu.Lock()
		// Re-check under the write lock; a Put may have raced in.
		if cur, ok := c.items[userID]; ok && c.now().After(cur.expires) {
			delete(c.items, userID)
		}
		c.mu.Unlock()
		return nil, false
	}
	return it.result, true
}

// Put stores a result snapshot for userID.
func (c *Cache) Put(userID string, result model.RankedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[userID] = item{result: result, expires: c.now().Add(c.ttl)}
}
