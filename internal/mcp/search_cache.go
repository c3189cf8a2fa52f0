package mcp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// CachedSearch is a previously computed search response kept around to
// avoid re-embedding and re-querying identical requests.
type CachedSearch struct {
	Results   []vectorstore.SearchResult
	QueryTime float64
}

type searchCacheEntry struct {
	value        CachedSearch
	createdAt    time.Time
	lastAccessed time.Time
}

// SearchCache is a bounded, TTL-based cache for context.search results,
// keyed on the query text plus its filter set.
type SearchCache struct {
	mu         sync.RWMutex
	entries    map[string]*searchCacheEntry
	maxEntries int
	ttl        time.Duration
}

// NewSearchCache builds a cache that evicts the least-recently-used entry
// once maxEntries is reached, and treats entries older than ttl as misses.
func NewSearchCache(maxEntries int, ttl time.Duration) *SearchCache {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SearchCache{
		entries:    make(map[string]*searchCacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get returns the cached response for (query, filters), if present and unexpired.
func (c *SearchCache) Get(query string, filters map[string]interface{}) (CachedSearch, bool) {
	key := cacheKey(query, filters)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return CachedSearch{}, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return CachedSearch{}, false
	}

	c.mu.Lock()
	entry.lastAccessed = time.Now()
	c.mu.Unlock()

	return entry.value, true
}

// Set stores a response for (query, filters), evicting the LRU entry if full.
func (c *SearchCache) Set(query string, filters map[string]interface{}, results []vectorstore.SearchResult, queryTime float64) {
	key := cacheKey(query, filters)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictLRULocked()
	}

	now := time.Now()
	c.entries[key] = &searchCacheEntry{
		value:        CachedSearch{Results: results, QueryTime: queryTime},
		createdAt:    now,
		lastAccessed: now,
	}
}

func (c *SearchCache) evictLRULocked() {
	var oldestKey string
	var oldestTime time.Time

	for k, e := range c.entries {
		if oldestKey == "" || e.lastAccessed.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.lastAccessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cacheKey derives a stable key from a query and its filter set. Filters are
// marshalled with sorted map keys so semantically identical requests collide.
func cacheKey(query string, filters map[string]interface{}) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, filters[k])
	}

	payload, _ := json.Marshal(struct {
		Query   string
		Filters []interface{}
	}{Query: query, Filters: ordered})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
