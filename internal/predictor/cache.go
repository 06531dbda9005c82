package predictor

import (
	"sync"
	"time"

	"github.com/scenariolab/foresight/internal/model"
)

// DefaultCacheTTL is how long a prediction stays fresh.
const DefaultCacheTTL = 15 * time.Minute

// Cache holds predictions keyed by expert name. Expired entries are evicted
// lazily on lookup; there is no background sweep, so observable timing
// depends only on reads. Expert names are a small, slowly-changing set, so
// unbounded growth is an accepted tradeoff.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

type cacheEntry struct {
	pred     model.ExpertPrediction
	storedAt time.Time
}

// NewCache creates a prediction cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Get returns the cached prediction for key if present and unexpired.
// An expired entry is deleted on the spot.
func (c *Cache) Get(key string) (model.ExpertPrediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return model.ExpertPrediction{}, false
	}
	if c.nowFunc().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return model.ExpertPrediction{}, false
	}
	return e.pred, true
}

// Set stores a prediction under key with a fresh timestamp.
func (c *Cache) Set(key string, pred model.ExpertPrediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{pred: pred, storedAt: c.nowFunc()}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
