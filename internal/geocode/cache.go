package geocode

import (
	"sync"
	"time"
)

const defaultCacheTTL = 24 * time.Hour

// ttlCache is a bounded in-memory address cache. Expired entries are dropped
// lazily on read and swept when the cache fills up.
type ttlCache struct {
	mu       sync.RWMutex
	items    map[string]cacheItem
	maxItems int
	ttl      time.Duration
	now      func() time.Time
}

type cacheItem struct {
	value     string
	expiresAt time.Time
}

func newTTLCache(maxItems int, ttl time.Duration) *ttlCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ttlCache{
		items:    make(map[string]cacheItem),
		maxItems: maxItems,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *ttlCache) Get(key string) (string, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if c.now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return "", false
	}
	return item.value, true
}

func (c *ttlCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evict()
	}
	c.items[key] = cacheItem{value: value, expiresAt: c.now().Add(c.ttl)}
}

// evict removes expired entries, or the entry closest to expiry when none
// have expired. Callers hold the write lock.
func (c *ttlCache) evict() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for k, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, k)
			continue
		}
		if oldestKey == "" || item.expiresAt.Before(oldest) {
			oldestKey, oldest = k, item.expiresAt
		}
	}
	if len(c.items) >= c.maxItems && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *ttlCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
