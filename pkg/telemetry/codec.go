package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for telemetry envelopes.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for telemetry envelopes.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient decoding for forward compatibility with newer firmware.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// EncodeMessage encodes a message to CBOR bytes.
func EncodeMessage(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return encMode.Marshal(m)
}

// DecodeMessage decodes CBOR bytes into a message.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	normalizeFields(m.Fields)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return &m, nil
}

// EncodeMessageJSON encodes a message to its JSON wire form.
func EncodeMessageJSON(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return json.Marshal(m)
}

// DecodeMessageJSON decodes the JSON wire form into a message.
// Tagged wrappers arrive as {"tag": ..., "value": ...} objects and are
// converted back to Tagged values.
func DecodeMessageJSON(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	normalizeFields(m.Fields)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return &m, nil
}

// normalizeFields rewrites decoder artifacts into canonical value
// forms: JSON objects and raw CBOR maps that look like Tagged wrappers
// become Tagged values.
func normalizeFields(fields map[string]any) {
	for name, v := range fields {
		switch raw := v.(type) {
		case map[string]any:
			if t, ok := taggedFromMap(raw["tag"], raw["value"]); ok {
				fields[name] = t
			}
		case map[any]any:
			if t, ok := taggedFromMap(raw[uint64(1)], raw[uint64(2)]); ok {
				fields[name] = t
			}
		}
	}
}

// taggedFromMap builds a Tagged value from decoded tag/value entries.
func taggedFromMap(tagRaw, valueRaw any) (Tagged, bool) {
	tag, ok := tagRaw.(string)
	if !ok {
		return Tagged{}, false
	}
	num, ok := NumericValue(valueRaw)
	if !ok {
		return Tagged{}, false
	}
	return Tagged{Tag: tag, Value: num}, true
}
