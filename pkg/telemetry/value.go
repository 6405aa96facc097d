package telemetry

// Tagged wraps a numeric value with a unit or source tag.
//
// CBOR encoding:
//
//	{
//	  1: tag,    // string
//	  2: value   // float64
//	}
type Tagged struct {
	Tag   string  `cbor:"1,keyasint" json:"tag"`
	Value float64 `cbor:"2,keyasint" json:"value"`
}

// NumericValue extracts a float64 from any numeric field value,
// including Tagged wrappers and the integer forms produced by JSON and
// CBOR decoding. Returns false for strings, booleans, nil, and
// anything else non-numeric.
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case Tagged:
		return n.Value, true
	case *Tagged:
		if n == nil {
			return 0, false
		}
		return n.Value, true
	default:
		return 0, false
	}
}

// ValuesEqual compares two field values for equality.
// Numeric values compare by their float64 form regardless of the
// concrete type the decoder produced; other scalars compare directly.
func ValuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	na, aok := NumericValue(a)
	nb, bok := NumericValue(b)
	if aok && bok {
		return na == nb
	}
	if aok != bok {
		return false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}
