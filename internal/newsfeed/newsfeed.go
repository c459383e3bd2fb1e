package newsfeed

import (
	"context"
	"time"
)

const (
	OriginLive       = "live"
	OriginCache      = "cache"
	OriginStaleCache = "stale_cache"
	OriginEmpty      = "empty"
)

type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Result is one per-stock fetch. Stale means the articles did not come from
// a successful live request: either an aged cache entry or nothing at all.
type Result struct {
	StockCode string    `json:"stock_code"`
	Keyword   string    `json:"keyword"`
	Articles  []Article `json:"articles"`
	Origin    string    `json:"origin"`
	Stale     bool      `json:"stale"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Fetcher interface {
	Fetch(ctx context.Context, stockCode string, limit int) (Result, error)
}

// Metrics is a point-in-time snapshot of adapter counters.
type Metrics struct {
	LiveFetches int64 `json:"live_fetches"`
	CacheHits   int64 `json:"cache_hits"`
	StaleServed int64 `json:"stale_served"`
	Failures    int64 `json:"failures"`
	Articles    int64 `json:"articles"`
	CacheSize   int   `json:"cache_size"`
}
