package stream

import (
	"time"
)

// Status describes a feed's current delivery condition.
type Status uint8

const (
	// StatusLive means deliveries flow normally.
	StatusLive Status = iota

	// StatusPaused means the feed is explicitly paused.
	StatusPaused

	// StatusHidden means the feed is gated by visibility.
	StatusHidden

	// StatusDisconnected means the transport connection is down.
	StatusDisconnected

	// StatusClosed means the feed has been unsubscribed.
	StatusClosed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusLive:
		return "LIVE"
	case StatusPaused:
		return "PAUSED"
	case StatusHidden:
		return "HIDDEN"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Feed is the consumer handle for one live subscription.
type Feed struct {
	router *Router
	sub    *Subscriber
}

// Topic returns the subscribed topic.
func (f *Feed) Topic() string {
	return f.sub.Topic()
}

// IsConnected reports the transport connection state.
func (f *Feed) IsConnected() bool {
	return f.router.IsConnected()
}

// LastMessageTime returns when the last raw message arrived for this
// feed. Zero if none has arrived yet.
func (f *Feed) LastMessageTime() time.Time {
	return f.sub.LastMessageTime()
}

// MessagesReceived returns the raw message count for this feed.
func (f *Feed) MessagesReceived() uint64 {
	return f.sub.MessagesReceived()
}

// Status returns the feed's current delivery condition.
func (f *Feed) Status() Status {
	switch {
	case !f.sub.isActive():
		return StatusClosed
	case f.sub.isPaused():
		return StatusPaused
	case f.sub.isHidden():
		return StatusHidden
	case !f.router.IsConnected():
		return StatusDisconnected
	default:
		return StatusLive
	}
}

// ClearCache resets the feed's dedup window, last-value table, and
// pending merge without unsubscribing.
func (f *Feed) ClearCache() {
	f.sub.ClearCache()
}

// PauseProcessing toggles the pause gate. Unpausing never flushes
// immediately; pending changes deliver on the next quantum.
func (f *Feed) PauseProcessing(paused bool) {
	f.sub.SetPaused(paused)
}

// SetVisible toggles the visibility gate. Same un-gating semantics as
// PauseProcessing.
func (f *Feed) SetVisible(visible bool) {
	f.sub.SetVisible(visible)
}

// ForceResubscribe tears down and recreates the topic's transport-level
// subscription, preserving feed state. Returns false when no transport
// is attached.
func (f *Feed) ForceResubscribe() bool {
	return f.router.resubscribeTopic(f.sub.Topic())
}

// Unsubscribe detaches the feed. The delivery timer is stopped
// synchronously; no callback fires afterward.
func (f *Feed) Unsubscribe() {
	f.router.removeFeed(f)
}
