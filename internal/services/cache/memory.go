package cache

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/models"
)

type memoryEntry struct {
	result   *models.ExtractionResult
	storedAt time.Time
}

// MemoryCache is a map-backed result cache. Expired entries are evicted
// lazily on read and in bulk by Sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	logger  arbor.ILogger
}

// NewMemoryCache creates an empty cache with the given TTL
func NewMemoryCache(ttl time.Duration, logger arbor.ILogger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the time source
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(key string) (*models.ExtractionResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.expired(entry) {
		c.mu.Lock()
		// Another writer may have refreshed the entry meanwhile
		if current, ok := c.entries[key]; ok && c.expired(current) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.result.Clone(), true
}

func (c *MemoryCache) Set(key string, result *models.ExtractionResult) error {
	if result == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{result: result.Clone(), storedAt: c.now()}
	return nil
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

func (c *MemoryCache) expired(entry memoryEntry) bool {
	return c.now().Sub(entry.storedAt) > c.ttl
}
