// Package stream implements the live-stream distribution and
// update-throttling engine: a topic router that fans one inbound
// message firehose out to independent subscribers, and a per-subscriber
// throttle/coalescer that converts bursty raw input into a bounded-rate
// sequence of merged deliveries.
//
// Each subscriber owns its own dedup window, last-value table, pending
// merge buffer, and delivery timer. Deliveries are frame-synchronized:
// at most one callback per scheduling quantum (max of 16ms and the
// configured update interval), carrying the union of all significant
// field changes accumulated since the previous delivery. Hidden or
// paused subscribers keep merging without delivering, and un-gating
// never flushes immediately, so many panels becoming visible at once
// cannot cause a thundering herd of callbacks.
package stream
