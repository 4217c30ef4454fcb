package rules

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/gating"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	action     string
	rules      []*models.Rule
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.insertedAt) > ttl
}

// RuleCache is an in-memory LRU cache with TTL for per-action rule sets.
// Thread-safe implementation using sync.Mutex
type RuleCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry // Key: action name
	lruList *list.List             // Doubly linked list for LRU tracking
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time

	// generations counts invalidations per action; epoch counts Clear calls.
	generations map[string]uint64
	epoch       uint64
}

// NewRuleCache creates a new RuleCache with specified max size and TTL
func NewRuleCache(maxSize int, ttl time.Duration) *RuleCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &RuleCache{
		entries:     make(map[string]*cacheEntry),
		lruList:     list.New(),
		maxSize:     maxSize,
		ttl:         ttl,
		now:         time.Now,
		generations: make(map[string]uint64),
	}
}

// Get retrieves the rules for an action.
// The second result is false if not found or expired.
func (c *RuleCache) Get(action string) ([]*models.Rule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[action]
	if !exists || entry.isExpired(c.now(), c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(action)
		}
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++

	return entry.rules, true
}

// Set stores the rules for an action
func (c *RuleCache) Set(action string, rules []*models.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(action, rules)
}

// Generation returns a token that changes whenever the entry for action is
// invalidated or the cache is cleared
func (c *RuleCache) Generation(action string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.epoch + c.generations[action]
}

// SetIfCurrent stores rules only if action has not been invalidated since gen
// was read. It reports whether the rules were stored.
func (c *RuleCache) SetIfCurrent(action string, rules []*models.Rule, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch+c.generations[action] != gen {
		return false
	}
	c.set(action, rules)
	return true
}

// set must be called with lock held
func (c *RuleCache) set(action string, rules []*models.Rule) {
	if entry, exists := c.entries[action]; exists {
		entry.rules = rules
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		action:     action,
		rules:      rules,
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(action)
	c.entries[action] = entry
}

// Invalidate removes the entry for an action
func (c *RuleCache) Invalidate(action string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[action]++
	c.removeEntry(action)
}

// Clear removes all entries from the cache
func (c *RuleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
	c.epoch++
}

// Stats returns cache statistics
func (c *RuleCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *RuleCache) removeEntry(action string) {
	if entry, exists := c.entries[action]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, action)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *RuleCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	action := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, action)
}

// CleanupExpired removes all expired entries
func (c *RuleCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for action, entry := range c.entries {
		if entry.isExpired(now, c.ttl) {
			c.removeEntry(action)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically removes expired entries until ctx is done
func (c *RuleCache) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

// CachedRuleStore serves RulesForAction from a RuleCache, falling back to the
// underlying store on a miss. Errors are never cached.
type CachedRuleStore struct {
	store gating.RuleStore
	cache *RuleCache
}

var _ gating.RuleStore = (*CachedRuleStore)(nil)

// NewCachedRuleStore wraps store with cache
func NewCachedRuleStore(store gating.RuleStore, cache *RuleCache) *CachedRuleStore {
	return &CachedRuleStore{store: store, cache: cache}
}

// RulesForAction returns the rules for an action, newest first
func (s *CachedRuleStore) RulesForAction(ctx context.Context, actionName string) ([]*models.Rule, error) {
	if rules, ok := s.cache.Get(actionName); ok {
		return rules, nil
	}

	// A rule mutation that lands during the load must not be masked by the
	// stale result.
	gen := s.cache.Generation(actionName)
	rules, err := s.store.RulesForAction(ctx, actionName)
	if err != nil {
		return nil, err
	}
	s.cache.SetIfCurrent(actionName, rules, gen)
	return rules, nil
}
