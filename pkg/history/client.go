package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/log"
)

// Client errors.
var (
	// ErrFetchInFlight means an identical fetch is already running.
	// The caller keeps observing the shared cache; no duplicate
	// network call is issued and nothing is queued.
	ErrFetchInFlight = errors.New("fetch already in flight")

	// ErrRefreshCooldown means the refresh was suppressed because the
	// previous refresh for the key was too recent.
	ErrRefreshCooldown = errors.New("refresh within cooldown")
)

// Client is the shared historical-query front end: one fetcher, one
// bounded cache, per-key in-flight markers and refresh cooldowns.
type Client struct {
	fetcher  Fetcher
	settings config.Settings
	logger   log.Logger

	mu          sync.Mutex
	cache       *Cache
	inflight    map[cacheKey]struct{}
	lastRefresh map[cacheKey]time.Time
}

// NewClient creates a historical-query client.
func NewClient(fetcher Fetcher, settings config.Settings, logger log.Logger) *Client {
	return &Client{
		fetcher:     fetcher,
		settings:    settings.Normalized(),
		logger:      log.OrNoop(logger),
		cache:       NewCache(),
		inflight:    make(map[cacheKey]struct{}),
		lastRefresh: make(map[cacheKey]time.Time),
	}
}

// Fetch returns rows for (endpoint, pageSize). A cache hit returns the
// stored rows without a network call. When an identical fetch is in
// flight the call returns ErrFetchInFlight instead of issuing a
// duplicate. A miss fetches with a bounded timeout, validates and
// downsamples the response, and stores it. Fetch failures leave the
// cache untouched.
//
// Returned rows are shared; callers must treat them as read-only.
func (c *Client) Fetch(ctx context.Context, endpoint string, pageSize int) ([]Row, error) {
	key := cacheKey{endpoint: endpoint, pageSize: pageSize}

	c.mu.Lock()
	if rows, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		c.logFetch(endpoint, pageSize, len(rows), true, 0)
		return rows, nil
	}
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return nil, ErrFetchInFlight
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, config.DefaultFetchTimeout)
	defer cancel()

	start := time.Now()
	rows, err := c.fetcher.Fetch(fetchCtx, endpoint, pageSize)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Log(log.ErrorEvent(log.LayerHistory, err, "fetch "+endpoint))
		return nil, fmt.Errorf("historical fetch: %w", err)
	}
	if err := validateRows(rows); err != nil {
		c.logger.Log(log.ErrorEvent(log.LayerHistory, err, "validate "+endpoint))
		return nil, err
	}

	rows = Downsample(rows, c.settings.DownsampleThreshold, c.settings.DownsampleFactor)

	c.mu.Lock()
	c.cache.Put(key, rows)
	c.mu.Unlock()

	c.logFetch(endpoint, pageSize, len(rows), false, elapsed)
	return rows, nil
}

// Refresh invalidates the cache entry for (endpoint, pageSize) and
// refetches. Refreshes within the cooldown window of the previous one
// for the same key are suppressed with ErrRefreshCooldown and cause no
// state change.
func (c *Client) Refresh(ctx context.Context, endpoint string, pageSize int) ([]Row, error) {
	key := cacheKey{endpoint: endpoint, pageSize: pageSize}
	cooldown := c.settings.RefreshCooldown()

	c.mu.Lock()
	if last, ok := c.lastRefresh[key]; ok && time.Since(last) < cooldown {
		c.mu.Unlock()
		return nil, ErrRefreshCooldown
	}
	c.lastRefresh[key] = time.Now()
	c.cache.Invalidate(key)
	c.mu.Unlock()

	return c.Fetch(ctx, endpoint, pageSize)
}

// CacheLen returns the number of cached result sets.
func (c *Client) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Cached returns the cached rows for (endpoint, pageSize), if present.
func (c *Client) Cached(endpoint string, pageSize int) ([]Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Get(cacheKey{endpoint: endpoint, pageSize: pageSize})
}

// logFetch records one fetch outcome.
func (c *Client) logFetch(endpoint string, pageSize, rows int, fromCache bool, elapsed time.Duration) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerHistory,
		Category:  log.CategoryMessage,
		Fetch: &log.FetchEvent{
			Endpoint:  endpoint,
			PageSize:  pageSize,
			Rows:      rows,
			FromCache: fromCache,
			Duration:  elapsed,
		},
	})
}
