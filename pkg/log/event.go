package log

import (
	"time"
)

// Event represents a delivery-layer log event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport connection (UUID), when
	// the event is tied to one.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Layer where the event was captured.
	Layer Layer `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Topic is the telemetry topic involved, when applicable.
	Topic string `cbor:"5,keyasint,omitempty"`

	// SubscriberID identifies the subscriber context, when applicable.
	SubscriberID string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"7,keyasint,omitempty"`  // Transport frames
	Drop        *DropEvent        `cbor:"8,keyasint,omitempty"`  // Discarded inputs
	Delivery    *DeliveryEvent    `cbor:"9,keyasint,omitempty"`  // Coalesced deliveries
	Fetch       *FetchEvent       `cbor:"10,keyasint,omitempty"` // Historical fetches
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Lifecycle transitions
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"` // Errors at any layer
}

// Layer indicates which delivery layer captured the event.
type Layer uint8

const (
	// LayerTransport is the connection and framing layer.
	LayerTransport Layer = 0
	// LayerStream is the router/coalescer layer.
	LayerStream Layer = 1
	// LayerHistory is the historical query layer.
	LayerHistory Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerStream:
		return "STREAM"
	case LayerHistory:
		return "HISTORY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates normal message flow.
	CategoryMessage Category = 0
	// CategoryDrop indicates a discarded input.
	CategoryDrop Category = 1
	// CategoryState indicates a lifecycle state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryDrop:
		return "DROP"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw transport frame.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// DropReason says why an input was discarded.
type DropReason uint8

const (
	// DropDuplicate means the message ID was already seen.
	DropDuplicate DropReason = 0
	// DropStale means the message time preceded the last delivery.
	DropStale DropReason = 1
	// DropInsignificant means no field change crossed the threshold.
	DropInsignificant DropReason = 2
	// DropUnroutable means no subscriber was registered for the topic.
	DropUnroutable DropReason = 3
	// DropMalformed means a field or envelope could not be used.
	DropMalformed DropReason = 4
)

// String returns the drop reason name.
func (r DropReason) String() string {
	switch r {
	case DropDuplicate:
		return "DUPLICATE"
	case DropStale:
		return "STALE"
	case DropInsignificant:
		return "INSIGNIFICANT"
	case DropUnroutable:
		return "UNROUTABLE"
	case DropMalformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

// DropEvent captures a discarded input message or field.
type DropEvent struct {
	// Reason the input was discarded.
	Reason DropReason `cbor:"1,keyasint"`

	// MessageID is the discarded message's ID, if it had one.
	MessageID string `cbor:"2,keyasint,omitempty"`

	// Field names the offending field for per-field drops.
	Field string `cbor:"3,keyasint,omitempty"`
}

// DeliveryEvent captures one coalesced delivery to a subscriber.
type DeliveryEvent struct {
	// FieldCount is the number of merged fields delivered.
	FieldCount int `cbor:"1,keyasint"`

	// MessageTime is the delivered payload's epoch-millisecond time.
	MessageTime int64 `cbor:"2,keyasint"`

	// Coalesced is the number of raw inputs merged into this delivery.
	Coalesced int `cbor:"3,keyasint,omitempty"`
}

// FetchEvent captures one historical fetch.
type FetchEvent struct {
	// Endpoint is the queried endpoint path.
	Endpoint string `cbor:"1,keyasint"`

	// PageSize is the requested row cap.
	PageSize int `cbor:"2,keyasint"`

	// Rows is the number of rows returned (after downsampling).
	Rows int `cbor:"3,keyasint,omitempty"`

	// FromCache indicates the result was served without a network call.
	FromCache bool `cbor:"4,keyasint,omitempty"`

	// Duration is the fetch duration for network fetches.
	Duration time.Duration `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a transport connection change.
	StateEntityConnection StateEntity = 0
	// StateEntitySubscriber indicates a subscriber context change.
	StateEntitySubscriber StateEntity = 1
	// StateEntityQuery indicates a historical query change.
	StateEntityQuery StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySubscriber:
		return "SUBSCRIBER"
	case StateEntityQuery:
		return "QUERY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// ErrorEvent builds a standard error event for a layer.
func ErrorEvent(layer Layer, err error, context string) Event {
	return Event{
		Timestamp: time.Now(),
		Layer:     layer,
		Category:  CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	}
}
