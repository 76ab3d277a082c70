package answercache

import (
	"context"
	"sync"
	"time"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

type memoryEntry struct {
	entry      Entry
	expiresAt  time.Time
	lastAccess time.Time
}

// MemoryCache is the in-process fallback used when no redis address is
// configured. Bounded: when full, the least recently used entry is evicted.
type MemoryCache struct {
	log *logger.Logger
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryCache(log *logger.Logger, cfg Config) *MemoryCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &MemoryCache{
		log:     log.With("service", "MemoryAnswerCache"),
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*memoryEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, query string) (Entry, bool, error) {
	key := Fingerprint(query)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	e.lastAccess = now
	return e.entry, true, nil
}

func (c *MemoryCache) Set(_ context.Context, query string, entry Entry) error {
	key := Fingerprint(query)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.cfg.MaxSize {
		c.evictLocked(now)
	}
	c.entries[key] = &memoryEntry{
		entry:      entry,
		expiresAt:  now.Add(c.cfg.TTL),
		lastAccess: now,
	}
	return nil
}

func (c *MemoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*memoryEntry)
	c.mu.Unlock()
	return nil
}

// evictLocked removes expired entries, then the least recently used one if
// the cache is still full.
func (c *MemoryCache) evictLocked(now time.Time) {
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.cfg.MaxSize {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = e.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
