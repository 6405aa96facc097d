package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/log"
)

// cachePollInterval paces re-checks of the shared cache while an
// identical fetch issued elsewhere is in flight.
const cachePollInterval = 50 * time.Millisecond

// Query is the consumer handle for one historical data set: current
// rows, loading and error state, manual refresh, and optional
// interval-driven auto-refresh. Results arriving after Close are
// discarded.
type Query struct {
	client   *Client
	endpoint string
	pageSize int
	logger   log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	data     []Row
	loading  bool
	err      error
	alive    bool
	onUpdate func()
}

// NewQuery creates a query and starts its initial fetch in the
// background. When the configured refresh rate is above zero the query
// also refreshes itself on that interval, subject to the client's
// per-key cooldown. A pageSize of zero uses the configured default.
func (c *Client) NewQuery(endpoint string, pageSize int) *Query {
	if pageSize <= 0 {
		pageSize = c.settings.PageSize
	}

	q := &Query{
		client:   c,
		endpoint: endpoint,
		pageSize: pageSize,
		logger:   c.logger,
		loading:  true,
		alive:    true,
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())

	q.wg.Add(1)
	go q.run()

	return q
}

// Data returns the current rows. Shared and read-only.
func (q *Query) Data() []Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.data
}

// Loading reports whether the initial fetch is still outstanding.
func (q *Query) Loading() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loading
}

// Err returns the most recent fetch error, nil after a success.
func (q *Query) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// OnUpdate sets a callback invoked after every committed state change.
// Invoked outside the query's lock.
func (q *Query) OnUpdate(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onUpdate = fn
}

// Refresh triggers a background refetch. Suppressed silently when
// inside the cooldown window; existing data and error state are then
// left untouched.
func (q *Query) Refresh() {
	go q.refreshOnce()
}

// Close stops auto-refresh and marks the query dead. Any in-flight
// result is discarded rather than committed.
func (q *Query) Close() {
	q.mu.Lock()
	if !q.alive {
		q.mu.Unlock()
		return
	}
	q.alive = false
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	q.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerHistory,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityQuery,
			NewState: "CLOSED",
		},
	})
}

// run performs the initial load, then auto-refreshes when configured.
func (q *Query) run() {
	defer q.wg.Done()

	rows, err := q.fetch()
	q.commit(rows, err)

	rate := q.client.settings.RefreshRate
	if rate <= 0 {
		return
	}

	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.refreshOnce()
		}
	}
}

// fetch runs one client fetch, waiting on the shared cache when an
// identical fetch is already in flight elsewhere.
func (q *Query) fetch() ([]Row, error) {
	rows, err := q.client.Fetch(q.ctx, q.endpoint, q.pageSize)
	if !errors.Is(err, ErrFetchInFlight) {
		return rows, err
	}

	// Another caller owns the network call; its result lands in the
	// shared cache.
	deadline := time.Now().Add(config.DefaultFetchTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-q.ctx.Done():
			return nil, q.ctx.Err()
		case <-time.After(cachePollInterval):
		}
		if rows, ok := q.client.Cached(q.endpoint, q.pageSize); ok {
			return rows, nil
		}
	}
	return nil, err
}

// refreshOnce runs one refresh and commits the result. Cooldown
// suppression commits nothing.
func (q *Query) refreshOnce() {
	rows, err := q.client.Refresh(q.ctx, q.endpoint, q.pageSize)
	if errors.Is(err, ErrRefreshCooldown) {
		return
	}
	if errors.Is(err, ErrFetchInFlight) {
		return
	}
	q.commit(rows, err)
}

// commit applies one fetch outcome unless the query has been closed.
// Errors keep the previous rows so consumers degrade rather than
// blank out.
func (q *Query) commit(rows []Row, err error) {
	q.mu.Lock()
	if !q.alive {
		q.mu.Unlock()
		return
	}
	if err != nil {
		q.err = err
	} else {
		q.data = rows
		q.err = nil
	}
	q.loading = false
	fn := q.onUpdate
	q.mu.Unlock()

	if fn != nil {
		fn()
	}
}
