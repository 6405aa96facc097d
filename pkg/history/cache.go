package history

import (
	"time"
)

// maxCacheEntries bounds the cache. Insertion past the bound evicts the
// oldest key first (FIFO, not recency).
const maxCacheEntries = 10

// Row is one historical record, keyed by field name. After validation
// every row carries a numeric "time" field in epoch milliseconds.
type Row map[string]any

// cacheKey identifies one cached result set.
type cacheKey struct {
	endpoint string
	pageSize int
}

// cacheEntry is one stored result set.
type cacheEntry struct {
	rows      []Row
	fetchedAt time.Time
}

// Cache is a bounded FIFO result cache. Not safe for concurrent use;
// the Client serializes access.
type Cache struct {
	entries map[cacheKey]*cacheEntry
	order   []cacheKey
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[cacheKey]*cacheEntry),
	}
}

// Get returns the cached rows for a key, if present.
func (c *Cache) Get(key cacheKey) ([]Row, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.rows, true
}

// Put stores rows for a key, evicting the oldest key when the cache
// would exceed its bound. Re-storing an existing key keeps its original
// insertion position.
func (c *Cache) Put(key cacheKey, rows []Row) {
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = &cacheEntry{rows: rows, fetchedAt: time.Now()}

	for len(c.entries) > maxCacheEntries {
		oldest := c.order[0]
		c.order = append([]cacheKey(nil), c.order[1:]...)
		delete(c.entries, oldest)
	}
}

// Invalidate removes one key.
func (c *Cache) Invalidate(key cacheKey) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}
