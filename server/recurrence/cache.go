package recurrence

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"
)

// cacheEntry holds the expansion of one request
type cacheEntry struct {
	slots      []slot
	expiresAt  time.Time
	accessedAt time.Time
}

// ExpansionCache memoizes rule expansions. Only rules with an explicit
// DTSTART are cached, since the others depend on the clock.
type ExpansionCache struct {
	entries         map[string]*cacheEntry
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// CacheConfig holds configuration for the expansion cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before cleanup
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for expansion caching
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewExpansionCache creates a new expansion cache with the given configuration
func NewExpansionCache(config CacheConfig) *ExpansionCache {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}

	cache := &ExpansionCache{
		entries:         make(map[string]*cacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

// cacheKey hashes everything that influences an expansion besides the clock.
func cacheKey(req Request, config EngineConfig) string {
	hasher := sha256.New()

	fmt.Fprintf(hasher, "rule=%s\n", req.TimingRule)
	fmt.Fprintf(hasher, "loc=%s\n", config.location().String())
	fmt.Fprintf(hasher, "max=%d\n", config.maxOccurrences())

	if start, ok := req.Start.Get(); ok {
		fmt.Fprintf(hasher, "start=%s\n", start)
	}
	if end, ok := req.End.Get(); ok {
		fmt.Fprintf(hasher, "end=%s\n", end)
	}
	if req.Task != nil && req.Task.End != nil {
		fmt.Fprintf(hasher, "task_end=%s\n", req.Task.End.Format(time.RFC3339Nano))
	}

	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Get retrieves a cached expansion if it exists and hasn't expired
func (c *ExpansionCache) Get(key string) ([]slot, bool) {
	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		c.mutex.Lock()
		delete(c.entries, key)
		c.mutex.Unlock()
		return nil, false
	}

	c.mutex.Lock()
	entry.accessedAt = now
	c.mutex.Unlock()

	return append([]slot(nil), entry.slots...), true
}

// Set stores an expansion in the cache
func (c *ExpansionCache) Set(key string, slots []slot) {
	now := time.Now()
	entry := &cacheEntry{
		slots:      append([]slot(nil), slots...),
		expiresAt:  now.Add(c.ttl),
		accessedAt: now,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry
	if len(c.entries) > c.maxEntries {
		c.cleanup()
	}
}

// cleanup removes expired entries, then the least recently used ones while
// over the limit. Callers hold the write lock.
func (c *ExpansionCache) cleanup() {
	now := time.Now()

	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].accessedAt.Before(c.entries[keys[j]].accessedAt)
	})

	for _, key := range keys[:len(c.entries)-c.maxEntries] {
		delete(c.entries, key)
	}
}

// cleanupLoop runs periodic cleanup
func (c *ExpansionCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache
func (c *ExpansionCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
	c.mutex.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *ExpansionCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entryCount := len(c.entries)
	expiredCount := 0
	now := time.Now()

	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			expiredCount++
		}
	}

	return CacheStats{
		TotalEntries:   entryCount,
		ExpiredEntries: expiredCount,
		ActiveEntries:  entryCount - expiredCount,
	}
}

// CacheStats provides information about cache usage
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
