package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Bikash9609/ca-ai/internal/store"
)

const (
	// DefaultCacheSize is the default number of cached bundles.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is how long a cached bundle stays valid.
	DefaultCacheTTL = 30 * time.Minute
)

// ContextCache holds recent bundles keyed by query, filters and limit.
// Concurrent writers of the same key race; the last one wins.
type ContextCache struct {
	lru *expirable.LRU[string, *Bundle]
}

// NewContextCache creates a cache of size entries that expire after ttl.
// Non-positive values use the defaults.
func NewContextCache(size int, ttl time.Duration) *ContextCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ContextCache{lru: expirable.NewLRU[string, *Bundle](size, nil, ttl)}
}

// Key derives the cache key. Filters are marshaled with a fixed field
// order, so equal filter sets produce equal keys.
func (c *ContextCache) Key(query string, f store.Filters, limit int) string {
	filters, _ := json.Marshal(f)
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write(filters)
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(limit)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached bundle.
func (c *ContextCache) Get(key string) (*Bundle, bool) {
	b, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	out := b.clone()
	out.Cached = true
	return out, true
}

// Add stores a copy of b under key.
func (c *ContextCache) Add(key string, b *Bundle) {
	c.lru.Add(key, b.clone())
}

// Purge drops every cached bundle. The indexer calls it after each write.
func (c *ContextCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached bundles.
func (c *ContextCache) Len() int {
	return c.lru.Len()
}
