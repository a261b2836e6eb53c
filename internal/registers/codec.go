// internal/registers/codec.go
package registers

import (
	"fmt"
	"math"
)

// Decode converts a raw register value into its domain value.
// It never fails: unknown mode codes decode to the spec's fallback mode.
//
//	boolean            -> bool
//	scaled_temperature -> float64
//	enumerated_mode    -> string
//	raw_integer        -> int
func Decode(s Spec, raw uint16) any {
	switch s.Kind {
	case KindBoolean:
		return raw != 0
	case KindScaledTemperature:
		return float64(raw)*s.Scale + s.Offset
	case KindEnumeratedMode:
		if name, ok := s.Modes[raw]; ok {
			return name
		}
		return s.Fallback
	default:
		return int(raw)
	}
}

// Encode converts a domain value into the raw register value.
func Encode(s Spec, v any) (uint16, error) {
	switch s.Kind {
	case KindBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
		f, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", s.Field, err)
		}
		if f != 0 {
			return 1, nil
		}
		return 0, nil

	case KindScaledTemperature:
		if s.Scale == 0 {
			return 0, fmt.Errorf("%w: field %q: scale must not be zero", ErrConfiguration, s.Field)
		}
		f, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", s.Field, err)
		}
		return toRegister(s.Field, math.Round((f-s.Offset)/s.Scale))

	case KindEnumeratedMode:
		name, ok := v.(string)
		if !ok {
			return 0, fmt.Errorf("%w: field %q: %v", ErrUnknownMode, s.Field, v)
		}
		for raw, n := range s.Modes {
			if n == name {
				return raw, nil
			}
		}
		return 0, fmt.Errorf("%w: field %q: %q", ErrUnknownMode, s.Field, name)

	default:
		f, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", s.Field, err)
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%w: field %q: %v is not an integer", ErrOutOfRange, s.Field, f)
		}
		return toRegister(s.Field, f)
	}
}

func toRegister(field string, f float64) (uint16, error) {
	if math.IsNaN(f) || f < 0 || f > math.MaxUint16 {
		return 0, fmt.Errorf("%w: field %q: %v does not fit a 16-bit register", ErrOutOfRange, field, f)
	}
	return uint16(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
}
