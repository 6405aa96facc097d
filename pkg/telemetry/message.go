package telemetry

import (
	"errors"
	"fmt"
)

// Message validation errors.
var (
	ErrMissingTopic  = errors.New("message has no topic")
	ErrMissingFields = errors.New("message has no fields")
	ErrInvalidTime   = errors.New("message has invalid timestamp")
)

// Message is one telemetry sample for one topic.
//
// CBOR encoding uses integer keys for compactness:
//
//	{
//	  1: id,      // string, optional
//	  2: topic,   // string
//	  3: time,    // int64 epoch milliseconds
//	  4: fields   // map of field name to value
//	}
type Message struct {
	// ID uniquely identifies the message for deduplication.
	// Empty when the source does not assign IDs.
	ID string `cbor:"1,keyasint,omitempty" json:"id,omitempty"`

	// Topic names the telemetry channel (e.g. "cell", "ins_imu").
	Topic string `cbor:"2,keyasint" json:"topic"`

	// Time is the sample time in epoch milliseconds.
	Time int64 `cbor:"3,keyasint" json:"time"`

	// Fields maps field names to scalar values or Tagged wrappers.
	Fields map[string]any `cbor:"4,keyasint" json:"fields"`
}

// Validate checks the envelope invariants. Field values are not
// validated here; the coalescer skips unusable fields individually.
func (m *Message) Validate() error {
	if m.Topic == "" {
		return ErrMissingTopic
	}
	if len(m.Fields) == 0 {
		return ErrMissingFields
	}
	if m.Time < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTime, m.Time)
	}
	return nil
}

// Clone returns a copy of the message with its own field map.
// Values are shared; they are treated as immutable throughout.
func (m *Message) Clone() *Message {
	fields := make(map[string]any, len(m.Fields))
	for k, v := range m.Fields {
		fields[k] = v
	}
	return &Message{ID: m.ID, Topic: m.Topic, Time: m.Time, Fields: fields}
}
