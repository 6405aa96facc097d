// Package history implements the historical-query cache and refresh
// scheduler: bulk time-series fetches with request coalescing, bounded
// FIFO response caching, response-shape validation, downsampling, and
// cooldown-limited refresh.
//
// The Client owns the shared cache: at most 10 entries keyed by
// (endpoint, pageSize), oldest evicted first. A singleton in-flight
// marker per key guarantees concurrent identical fetches issue at most
// one network call. Query is the consumer handle: data/loading/error
// state, manual refresh, and optional interval-driven auto-refresh.
package history
