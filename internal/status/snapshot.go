// internal/status/snapshot.go
package status

import (
	"sort"
	"time"
)

// Snapshot is the decoded device state produced by one poll cycle.
// Values is never mutated once the snapshot has been published;
// a failed cycle republishes the previous Values with Available=false.
type Snapshot struct {
	DeviceID string
	At       time.Time
	Cycle    uint64

	Values    map[string]any
	Operation string
	Available bool

	Health        uint16
	LastErrorCode uint16
	LastError     string
}

// Value returns the decoded value of field.
func (s Snapshot) Value(field string) (any, bool) {
	v, ok := s.Values[field]
	return v, ok
}

func (s Snapshot) Has(field string) bool {
	_, ok := s.Values[field]
	return ok
}

// Bool returns a boolean field.
func (s Snapshot) Bool(field string) (bool, bool) {
	b, ok := s.Values[field].(bool)
	return b, ok
}

// Float returns a numeric field as float64. Raw integer fields convert.
func (s Snapshot) Float(field string) (float64, bool) {
	switch v := s.Values[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Text returns a string field (modes).
func (s Snapshot) Text(field string) (string, bool) {
	v, ok := s.Values[field].(string)
	return v, ok
}

// Fields lists the present fields in lexical order.
func (s Snapshot) Fields() []string {
	out := make([]string, 0, len(s.Values))
	for k := range s.Values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
