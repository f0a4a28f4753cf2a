package relay

import (
	"context"
	"sync"
	"time"

	"github.com/businessweb01/dbmiddleware/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultCacheMaxEntries = 10000
	defaultEvictInterval   = time.Minute
	// evictKeepFraction is how much of the cache survives an eviction pass.
	// Dropping the oldest ~20% in one sweep keeps sweeps rare.
	evictKeepFraction = 0.8
)

// DedupCache is a bounded, process-lifetime set of booking ids that have been
// handed to the sink. Marking is the mutual-exclusion gate for delivery: an id
// is marked before its POST goes out and unmarked only when delivery
// terminally fails. Membership is a hint, not a durability guarantee — it is
// lost on restart and the sink must tolerate the resulting duplicates.
//
// Eviction is FIFO on insertion order with no access promotion, and runs on a
// timer rather than inline on Mark.
type DedupCache struct {
	mu      sync.Mutex
	entries map[string]struct{}
	order   []string
	max     int

	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewDedupCache(maxEntries int, evictInterval time.Duration, logger *zap.Logger) *DedupCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	if evictInterval <= 0 {
		evictInterval = defaultEvictInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DedupCache{
		entries:  make(map[string]struct{}),
		max:      maxEntries,
		interval: evictInterval,
		logger:   logger,
	}
}

func (c *DedupCache) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

// Mark inserts the id and reports whether it was newly inserted. A false
// return means another pipeline invocation already owns this id.
func (c *DedupCache) Mark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; exists {
		return false
	}

	c.entries[id] = struct{}{}
	c.order = append(c.order, id)
	return true
}

// Unmark releases an id so a future notification can retry it.
func (c *DedupCache) Unmark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The order slice keeps the stale slot; eviction skips ids that are no
	// longer members, which keeps Unmark O(1).
	delete(c.entries, id)
}

func (c *DedupCache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.entries[id]
	return exists
}

func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// RunEviction periodically trims the cache until ctx is canceled.
func (c *DedupCache) RunEviction(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.EvictIfNeeded()
		}
	}
}

// EvictIfNeeded drops the oldest-inserted entries when the cache has grown
// past its bound, keeping roughly 80% of the bound. A dropped id that is
// still mid-delivery at worst causes one duplicate forward, which the sink
// contract accepts.
func (c *DedupCache) EvictIfNeeded() {
	c.mu.Lock()

	if len(c.entries) <= c.max {
		c.mu.Unlock()
		return
	}

	target := int(float64(c.max) * evictKeepFraction)
	evicted := 0

	var kept []string
	for i, id := range c.order {
		if _, exists := c.entries[id]; !exists {
			continue
		}
		if len(c.entries) > target {
			delete(c.entries, id)
			evicted++
			continue
		}
		kept = append(kept, c.order[i:]...)
		break
	}

	// Rebuild order without stale slots so it cannot grow unbounded.
	c.order = compactOrder(kept, c.entries)
	size := len(c.entries)
	c.mu.Unlock()

	c.logger.Info("dedup cache evicted oldest entries",
		zap.Int("evicted", evicted),
		zap.Int("remaining", size),
	)
	c.metrics.SetDedupCacheEntries(size)
}

func compactOrder(order []string, entries map[string]struct{}) []string {
	compacted := order[:0]
	for _, id := range order {
		if _, exists := entries[id]; exists {
			compacted = append(compacted, id)
		}
	}
	return compacted
}
