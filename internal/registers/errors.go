// internal/registers/errors.go
package registers

import "errors"

var (
	// ErrConfiguration marks a register map that cannot be used:
	// zero scale, empty or ambiguous mode table, duplicate field.
	ErrConfiguration = errors.New("registers: invalid configuration")

	// ErrUnknownMode is returned when encoding a mode name absent from the mode table.
	ErrUnknownMode = errors.New("registers: unknown mode")

	// ErrOutOfRange is returned when a value has no 16-bit register representation.
	ErrOutOfRange = errors.New("registers: value out of range")

	// ErrInvalidValue is returned when a value has the wrong type for the register kind.
	ErrInvalidValue = errors.New("registers: invalid value")

	// ErrUnknownField is returned for a field name that is not in the map.
	ErrUnknownField = errors.New("registers: unknown field")
)
