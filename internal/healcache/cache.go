// Package healcache stores accepted heals keyed by a normalized page/locator/
// action fingerprint, so a locator that already healed once does not cost a
// second LLM call.
package healcache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

// entry is one cached heal plus its rolling failure count.
type entry struct {
	key        string
	locator    schemas.LocatorInfo
	confidence float64
	reasoning  string
	failures   int
	storedAt   time.Time
	element    *list.Element
}

// Hit is the usable payload of a successful lookup: the healed locator plus
// the confidence and reasoning recorded when it was accepted, so a cached
// heal reports the same evidence a fresh one would.
type Hit struct {
	Locator    schemas.LocatorInfo
	Confidence float64
	Reasoning  string
}

// Stats is a point-in-time snapshot of cache performance.
type Stats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is a bounded, time-expiring heal store. Writes are gated on
// confidence so a guess never gets locked in; reads self-evict entries whose
// failure count shows the heal has stopped working, without waiting for a
// human to notice.
type Cache struct {
	mu        sync.Mutex
	cfg       config.CacheConfig
	entries   map[string]*entry
	lru       *list.List
	hits      int64
	misses    int64
	evictions int64

	now    func() time.Time
	logger *zap.Logger
}

// New creates an empty cache.
func New(cfg config.CacheConfig, logger *zap.Logger) *Cache {
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		lru:     list.New(),
		now:     time.Now,
		logger:  logger.Named("healcache"),
	}
}

// Get returns the cached heal for key, or ok=false on a miss. Expired
// entries and entries whose failure count crossed the threshold are evicted
// on the way out and reported as misses.
func (c *Cache) Get(key Key) (Hit, bool) {
	fp := key.Fingerprint()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fp]
	if !ok {
		c.misses++
		return Hit{}, false
	}

	if c.now().Sub(e.storedAt) > c.cfg.TTL {
		c.removeLocked(e)
		c.misses++
		c.logger.Debug("Cache entry expired", zap.String("key", fp))
		return Hit{}, false
	}

	if e.failures >= c.cfg.MaxFailures {
		c.removeLocked(e)
		c.misses++
		c.logger.Info("Cached heal evicted after repeated execution failures",
			zap.String("key", fp),
			zap.Int("failures", e.failures))
		return Hit{}, false
	}

	c.lru.MoveToFront(e.element)
	c.hits++
	return Hit{Locator: e.locator, Confidence: e.confidence, Reasoning: e.reasoning}, true
}

// Put stores an accepted heal. It is a no-op when confidence is below the
// configured floor. Storing over an existing key replaces it and resets its
// failure count; a size overflow evicts the least-recently-used entry.
func (c *Cache) Put(key Key, locator schemas.LocatorInfo, confidence float64, reasoning string) {
	if confidence < c.cfg.MinConfidenceToCache {
		c.logger.Debug("Heal not cached, confidence below floor",
			zap.Float64("confidence", confidence),
			zap.Float64("floor", c.cfg.MinConfidenceToCache))
		return
	}

	fp := key.Fingerprint()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[fp]; ok {
		c.removeLocked(existing)
	}
	for len(c.entries) >= c.cfg.MaxSize {
		c.evictOldestLocked()
	}

	e := &entry{
		key:        fp,
		locator:    locator,
		confidence: confidence,
		reasoning:  reasoning,
		storedAt:   c.now(),
	}
	e.element = c.lru.PushFront(e)
	c.entries[fp] = e
}

// RecordFailure increments the failure count of the entry for key, if one
// exists. The entry is retired on its next Get once the count crosses the
// threshold.
func (c *Cache) RecordFailure(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.Fingerprint()]; ok {
		e.failures++
	}
}

// Invalidate removes the entry for key, if present.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.Fingerprint()]; ok {
		c.removeLocked(e)
	}
}

// Clear drops every entry. Hit/miss statistics survive.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.lru = list.New()
}

// GetStats returns a snapshot of size and hit-rate statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   rate,
	}
}

// removeLocked unlinks an entry. Caller holds mu.
func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru.Remove(e.element)
	c.evictions++
}

// evictOldestLocked drops the least-recently-used entry. Caller holds mu.
func (c *Cache) evictOldestLocked() {
	oldest := c.lru.Back()
	if oldest == nil {
		return
	}
	c.removeLocked(oldest.Value.(*entry))
}
