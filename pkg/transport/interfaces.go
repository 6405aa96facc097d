package transport

import (
	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/telemetry"
)

// Handler receives decoded telemetry messages for one topic.
// Handlers run synchronously on the transport's read loop and must not
// block; the delivery layer defers all heavy work to its own timers.
type Handler func(msg *telemetry.Message)

// Transport is the adapter the delivery layer consumes.
// Implemented by WSClient.
type Transport interface {
	// Subscribe registers a handler for one topic and returns an
	// unsubscribe function. The returned function is always safe to
	// call, including after the transport is closed.
	Subscribe(topic string, handler Handler) (func(), error)

	// OnConnectionChange registers a connection-state listener and
	// returns an unsubscribe function. The listener is invoked with
	// true on connect and false on loss.
	OnConnectionChange(fn func(connected bool)) func()

	// OnResume registers a listener invoked after every successful
	// reconnection that followed a connection loss, and returns an
	// unsubscribe function.
	OnResume(fn func()) func()

	// UpdateSettings forwards configuration to the server,
	// best-effort.
	UpdateSettings(settings config.Settings)
}

// Compile-time interface satisfaction check.
var _ Transport = (*WSClient)(nil)
