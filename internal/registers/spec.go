// internal/registers/spec.go
package registers

import (
	"fmt"
	"sort"
	"strings"
)

// Kind selects how a raw register value maps to a domain value.
type Kind uint8

const (
	KindRawInteger Kind = iota
	KindBoolean
	KindScaledTemperature
	KindEnumeratedMode
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindScaledTemperature:
		return "scaled_temperature"
	case KindEnumeratedMode:
		return "enumerated_mode"
	default:
		return "raw_integer"
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw_integer", "raw":
		return KindRawInteger, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "scaled_temperature", "temperature":
		return KindScaledTemperature, nil
	case "enumerated_mode", "mode":
		return KindEnumeratedMode, nil
	}
	return 0, fmt.Errorf("%w: unknown register kind %q", ErrConfiguration, s)
}

// Field names understood by the coordinator.
const (
	FieldPower       = "power_state"
	FieldMode        = "mode"
	FieldCurrentTemp = "current_temp"
	FieldTargetTemp  = "target_temp"

	// FieldOperationMode is a composite write target (mode + power).
	// It never appears in a Map.
	FieldOperationMode = "operation_mode"
)

// Spec describes one holding register of interest.
type Spec struct {
	Field   string
	Address uint16
	Kind    Kind

	// Scale and Offset apply to KindScaledTemperature only.
	Scale  float64
	Offset float64

	// Modes and Fallback apply to KindEnumeratedMode only.
	Modes    map[uint16]string
	Fallback string

	Writable bool
}

// Validate checks the spec in isolation.
func (s Spec) Validate() error {
	if s.Field == "" {
		return fmt.Errorf("%w: register at address %d has no field name", ErrConfiguration, s.Address)
	}
	if s.Field == FieldOperationMode {
		return fmt.Errorf("%w: %q is reserved for composite writes", ErrConfiguration, s.Field)
	}

	switch s.Kind {
	case KindScaledTemperature:
		if s.Scale == 0 {
			return fmt.Errorf("%w: field %q: scale must not be zero", ErrConfiguration, s.Field)
		}
	case KindEnumeratedMode:
		if len(s.Modes) == 0 {
			return fmt.Errorf("%w: field %q: mode table is empty", ErrConfiguration, s.Field)
		}
		seen := make(map[string]uint16, len(s.Modes))
		for raw, name := range s.Modes {
			if name == "" {
				return fmt.Errorf("%w: field %q: empty mode name for raw value %d", ErrConfiguration, s.Field, raw)
			}
			if prev, dup := seen[name]; dup {
				return fmt.Errorf(
					"%w: field %q: mode %q mapped by raw values %d and %d",
					ErrConfiguration, s.Field, name, prev, raw,
				)
			}
			seen[name] = raw
		}
		if s.Fallback == "" {
			return fmt.Errorf("%w: field %q: fallback mode required", ErrConfiguration, s.Field)
		}
	case KindRawInteger, KindBoolean:
	default:
		return fmt.Errorf("%w: field %q: unsupported kind %d", ErrConfiguration, s.Field, s.Kind)
	}

	return nil
}

// ModeNames lists the mode table names ordered by raw code.
func (s Spec) ModeNames() []string {
	raws := make([]int, 0, len(s.Modes))
	for raw := range s.Modes {
		raws = append(raws, int(raw))
	}
	sort.Ints(raws)

	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		out = append(out, s.Modes[uint16(raw)])
	}
	return out
}

// Map is the immutable register map of one device, in read order.
type Map struct {
	specs []Spec
	index map[string]int
}

// NewMap validates specs and builds a Map. Addresses may repeat across
// fields; field names may not.
func NewMap(specs ...Spec) (*Map, error) {
	m := &Map{
		specs: make([]Spec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}

	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.index[s.Field]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrConfiguration, s.Field)
		}

		if s.Modes != nil {
			modes := make(map[uint16]string, len(s.Modes))
			for k, v := range s.Modes {
				modes[k] = v
			}
			s.Modes = modes
		}

		m.index[s.Field] = len(m.specs)
		m.specs = append(m.specs, s)
	}

	return m, nil
}

// Lookup returns the spec for field.
func (m *Map) Lookup(field string) (Spec, bool) {
	if m == nil {
		return Spec{}, false
	}
	i, ok := m.index[field]
	if !ok {
		return Spec{}, false
	}
	return m.specs[i], true
}

// Specs returns a copy of all specs in read order.
func (m *Map) Specs() []Spec {
	if m == nil {
		return nil
	}
	out := make([]Spec, len(m.specs))
	copy(out, m.specs)
	return out
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.specs)
}
