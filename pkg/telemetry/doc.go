// Package telemetry defines the data model shared by the live streaming
// and historical query layers.
//
// # Messages
//
// A Message is an immutable envelope carrying one sample for one topic:
// an optional unique ID (used for deduplication), the topic name, a
// millisecond epoch timestamp, and a flat map of named field values.
// Messages are produced by a transport adapter, routed by topic, and
// discarded after delivery; nothing downstream mutates them.
//
// # Values
//
// Field values are scalars (float64, int64, string, bool, nil) or a
// Tagged numeric wrapper carrying a unit or source tag alongside the
// number. NumericValue extracts a float64 from any numeric form.
//
// # Encodings
//
// Envelopes travel as JSON over the websocket feed and as CBOR with
// integer keys in compact logs and captures. Both forms decode into the
// same Message type.
package telemetry
