package newsfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Duinho/SignalWatch/internal/config"
)

// Client fetches per-stock news over RSS. Transient failures never surface as
// hard errors: the caller gets a stale cache entry or an empty stale result.
type Client struct {
	cfg      config.NewsFeedConfig
	keywords map[string]string
	parser   *gofeed.Parser
	http     *http.Client
	limiter  *rate.Limiter
	cache    *ttlCache
	logger   *zap.Logger

	liveFetches atomic.Int64
	cacheHits   atomic.Int64
	staleServed atomic.Int64
	failures    atomic.Int64
	articles    atomic.Int64
}

func NewClient(cfg config.NewsFeedConfig, watchlist []config.WatchlistEntry, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	keywords := make(map[string]string, len(watchlist))
	for _, entry := range watchlist {
		if entry.Code == "" || entry.Name == "" {
			continue
		}
		keywords[entry.Code] = entry.Name
	}
	perSec := cfg.RequestsPerSec
	if perSec <= 0 {
		perSec = 1
	}
	burst := cfg.RequestBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:      cfg,
		keywords: keywords,
		parser:   gofeed.NewParser(),
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(perSec), burst),
		cache:    newTTLCache(cfg.CacheTTL, cfg.StaleMaxAge),
		logger:   logger.Named("newsfeed"),
	}
}

func (c *Client) Fetch(ctx context.Context, stockCode string, limit int) (Result, error) {
	if limit <= 0 {
		limit = 30
	}
	keyword, ok := c.keywords[stockCode]
	if !ok {
		keyword = stockCode
	}
	now := time.Now().UTC()
	key := cacheKey(keyword, limit)

	if articles, hit := c.cache.getFresh(key, now); hit {
		c.cacheHits.Add(1)
		return Result{
			StockCode: stockCode,
			Keyword:   keyword,
			Articles:  articles,
			Origin:    OriginCache,
			FetchedAt: now,
		}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	articles, err := c.fetchWithRetry(ctx, keyword, limit)
	if err == nil {
		c.liveFetches.Add(1)
		c.articles.Add(int64(len(articles)))
		c.cache.put(key, articles, now)
		return Result{
			StockCode: stockCode,
			Keyword:   keyword,
			Articles:  articles,
			Origin:    OriginLive,
			FetchedAt: now,
		}, nil
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	c.failures.Add(1)
	c.logger.Warn("live fetch failed",
		zap.String("stock_code", stockCode),
		zap.String("keyword", keyword),
		zap.Error(err))

	if articles, hit := c.cache.getStale(key, now); hit {
		c.staleServed.Add(1)
		return Result{
			StockCode: stockCode,
			Keyword:   keyword,
			Articles:  articles,
			Origin:    OriginStaleCache,
			Stale:     true,
			FetchedAt: now,
		}, nil
	}
	return Result{
		StockCode: stockCode,
		Keyword:   keyword,
		Origin:    OriginEmpty,
		Stale:     true,
		FetchedAt: now,
	}, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, keyword string, limit int) ([]Article, error) {
	backoff := c.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	attempts := c.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		articles, err := c.fetchOnce(ctx, keyword, limit)
		if err == nil {
			return articles, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, keyword string, limit int) ([]Article, error) {
	feedURL := fmt.Sprintf(c.cfg.FeedURLTemplate, url.QueryEscape(keyword))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "SignalWatch/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed request failed: %s", resp.Status)
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed parse failed: %w", err)
	}

	articles := make([]Article, 0, limit)
	for _, item := range feed.Items {
		if len(articles) >= limit {
			break
		}
		published := time.Time{}
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}
		source := feed.Title
		if item.Author != nil && item.Author.Name != "" {
			source = item.Author.Name
		}
		articles = append(articles, Article{
			Title:       item.Title,
			Link:        item.Link,
			Source:      source,
			PublishedAt: published,
		})
	}
	return articles, nil
}

// SweepCache drops entries past the stale window. Called from cron.
func (c *Client) SweepCache() int {
	return c.cache.sweep(time.Now().UTC())
}

func (c *Client) MetricsSnapshot() Metrics {
	return Metrics{
		LiveFetches: c.liveFetches.Load(),
		CacheHits:   c.cacheHits.Load(),
		StaleServed: c.staleServed.Load(),
		Failures:    c.failures.Load(),
		Articles:    c.articles.Load(),
		CacheSize:   c.cache.size(),
	}
}
