// Package log provides structured event logging for the telemetry
// delivery layers.
//
// The streaming and history packages emit Events rather than writing to
// a concrete logger, so applications choose the sink: SlogAdapter for
// console output during development, FileLogger for compact CBOR
// capture files, MultiLogger to combine sinks, or NoopLogger to disable
// logging entirely.
//
// Events carry the layer that produced them (transport, stream,
// history), a category (message, drop, state, error), and a
// type-specific payload. Dropped-message events record why the
// coalescer discarded an input (duplicate, stale, insignificant);
// dropping is normal operation in this system, not an error.
package log
