package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/expr"
)

// Cache memoizes Plan() results, adapted directly from the teacher's
// PlanCache (datalog/planner/cache.go): a size-bounded map with a TTL,
// keyed here on the expression's String() form plus the table name
// (instead of a Datalog query plus planner options, since this
// planner's only "options" that affect the output are the
// capabilities themselves). The planner is purely functional (spec.md
// §5), so caching by input alone is sound.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration

	hits   int64
	misses int64
}

type cacheEntry struct {
	plan      *Plan
	timestamp time.Time
}

// NewCache creates a plan cache bounded to maxSize entries with the
// given ttl. maxSize<=0 defaults to 1000; ttl<=0 defaults to 5 minutes.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns a cached plan for e against capabilities, if present and
// unexpired.
func (c *Cache) Get(e expr.Expr, capabilities *catalog.Capabilities) (*Plan, bool) {
	if c == nil {
		return nil, false
	}
	key := cacheKey(e, capabilities)

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if time.Since(entry.timestamp) > c.ttl {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return entry.plan, true
}

// Set stores plan for e against capabilities, evicting an arbitrary
// entry if the cache is at capacity (simple bound, not LRU — the
// teacher's PlanCache makes the same tradeoff).
func (c *Cache) Set(e expr.Expr, capabilities *catalog.Capabilities, plan *Plan) {
	if c == nil || plan == nil {
		return
	}
	key := cacheKey(e, capabilities)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[key] = cacheEntry{plan: plan, timestamp: time.Now()}
}

// Stats returns cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

func cacheKey(e expr.Expr, capabilities *catalog.Capabilities) string {
	sum := sha256.Sum256([]byte(capabilities.TableName + "\x00" + e.String()))
	return hex.EncodeToString(sum[:])
}
