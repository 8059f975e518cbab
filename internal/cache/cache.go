// Package cache implements the two-tier content-addressed result
// cache: a small in-memory LRU tier in front of a durable single-file
// tier. The cache is a performance optimization only — every failure
// in the persistent tier degrades to a miss and is never surfaced to
// the request path.
package cache

import (
	"os"
	"time"

	"histlens/internal/logging"
)

// Options configures a Cache.
type Options struct {
	Dir                  string // storage directory for the persistent file
	FastTierMaxEntries   int
	PersistentMaxEntries int
	TTL                  time.Duration
	SweepInterval        time.Duration
}

// Stats reports cache occupancy.
type Stats struct {
	FastTierCount       int   `json:"fastTierCount"`
	PersistentTierCount int   `json:"persistentTierCount"`
	ApproximateByteSize int64 `json:"approximateByteSize"`
}

// Cache is the two-tier content-addressed cache.
type Cache struct {
	fast   *memoryTier
	store  *fileStore
	ttl    time.Duration
	logger *logging.Logger

	sweepInterval time.Duration
	sweepDone     chan struct{}

	// now is replaceable in tests to pin the clock.
	now func() time.Time
}

// New opens the cache, loading the persistent tier and pre-warming the
// fast tier with at most half its capacity of the newest-accessed
// unexpired entries.
func New(opts Options, logger *logging.Logger) *Cache {
	if opts.FastTierMaxEntries <= 0 {
		opts.FastTierMaxEntries = 100
	}
	if opts.PersistentMaxEntries <= 0 {
		opts.PersistentMaxEntries = 1000
	}
	if opts.TTL <= 0 {
		opts.TTL = 168 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Hour
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		logger.Warn("Failed to create cache directory, persistent tier will be empty", map[string]interface{}{
			"dir":   opts.Dir,
			"error": err.Error(),
		})
	}

	c := &Cache{
		fast:          newMemoryTier(opts.FastTierMaxEntries),
		store:         openFileStore(opts.Dir, opts.PersistentMaxEntries, logger),
		ttl:           opts.TTL,
		logger:        logger,
		sweepInterval: opts.SweepInterval,
		sweepDone:     make(chan struct{}),
		now:           time.Now,
	}

	c.prewarm(opts.FastTierMaxEntries / 2)
	return c
}

func (c *Cache) prewarm(limit int) {
	if limit <= 0 {
		return
	}
	entries := c.store.newestFirst(limit, c.now(), c.ttl)
	for _, entry := range entries {
		c.fast.put(entry)
	}
	if len(entries) > 0 {
		c.logger.Debug("Pre-warmed fast cache tier", map[string]interface{}{
			"entries": len(entries),
		})
	}
}

// Get returns the cached payload for key, or ok=false on a miss.
// A persistent-tier hit is promoted into the fast tier. Expired
// entries are treated as absent and removed from both tiers in the
// background.
func (c *Cache) Get(key string) (string, bool) {
	now := c.now()

	if entry, ok := c.fast.get(key, now); ok {
		if entry.expired(now, c.ttl) {
			go c.removeBoth(key)
			return "", false
		}
		return entry.Payload, true
	}

	entry, ok := c.store.get(key, now)
	if !ok {
		return "", false
	}
	if entry.expired(now, c.ttl) {
		go c.removeBoth(key)
		return "", false
	}

	c.fast.put(entry)
	return entry.Payload, true
}

// Set stores a payload under key. The fast-tier write is synchronous;
// the persistent write is queued and its failure never affects the
// caller.
func (c *Cache) Set(key, payload string) {
	now := c.now()
	entry := &Entry{
		Key:            key,
		Payload:        payload,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
	}

	c.fast.put(entry)
	c.store.put(entry)
}

// Clear empties both tiers. Maintenance use only.
func (c *Cache) Clear() {
	c.fast.clear()
	c.store.clear()
}

// Stats reports occupancy of both tiers.
func (c *Cache) Stats() Stats {
	return Stats{
		FastTierCount:       c.fast.len(),
		PersistentTierCount: c.store.len(),
		ApproximateByteSize: c.fast.byteSize() + c.store.byteSize(),
	}
}

// StartSweeper begins the periodic removal of expired entries from
// both tiers. The sweep never panics past its boundary.
func (c *Cache) StartSweeper() {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-c.sweepDone:
				return
			}
		}
	}()
}

// Sweep removes expired entries from both tiers once.
func (c *Cache) Sweep() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Cache sweep panicked", map[string]interface{}{
				"panic": r,
			})
		}
	}()

	now := c.now()
	fastRemoved := c.fast.removeExpired(now, c.ttl)
	storeRemoved := c.store.removeExpired(now, c.ttl)
	if fastRemoved+storeRemoved > 0 {
		c.logger.Debug("Swept expired cache entries", map[string]interface{}{
			"fast":       fastRemoved,
			"persistent": storeRemoved,
		})
	}
}

// Close stops the sweeper and flushes the persistent tier.
func (c *Cache) Close() {
	select {
	case <-c.sweepDone:
	default:
		close(c.sweepDone)
	}
	c.store.close()
}

func (c *Cache) removeBoth(key string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Expired entry removal panicked", map[string]interface{}{
				"panic": r,
			})
		}
	}()
	c.fast.delete(key)
	c.store.delete(key)
}
