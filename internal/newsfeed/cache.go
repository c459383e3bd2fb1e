package newsfeed

import (
	"strconv"
	"sync"
	"time"
)

type cacheEntry struct {
	articles []Article
	storedAt time.Time
}

type ttlCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxAge  time.Duration
}

func newTTLCache(ttl, maxAge time.Duration) *ttlCache {
	if maxAge < ttl {
		maxAge = ttl
	}
	return &ttlCache{
		entries: map[string]cacheEntry{},
		ttl:     ttl,
		maxAge:  maxAge,
	}
}

func cacheKey(keyword string, limit int) string {
	return keyword + "|" + strconv.Itoa(limit)
}

func (c *ttlCache) getFresh(key string, now time.Time) ([]Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || now.Sub(entry.storedAt) > c.ttl {
		return nil, false
	}
	return cloneArticles(entry.articles), true
}

// getStale serves an expired entry as a fallback, as long as it is not older
// than maxAge.
func (c *ttlCache) getStale(key string, now time.Time) ([]Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || now.Sub(entry.storedAt) > c.maxAge {
		return nil, false
	}
	return cloneArticles(entry.articles), true
}

func (c *ttlCache) put(key string, articles []Article, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{articles: cloneArticles(articles), storedAt: now}
}

func (c *ttlCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.maxAge {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *ttlCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cloneArticles(items []Article) []Article {
	if len(items) == 0 {
		return nil
	}
	out := make([]Article, len(items))
	copy(out, items)
	return out
}
