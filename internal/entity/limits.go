// internal/entity/limits.go
package entity

import (
	cfg "github.com/tamzrod/hws-coordinator/internal/config"
)

type Range struct {
	Min float64
	Max float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Limits bounds target temperature writes. A mode range is narrowed by the
// global range.
type Limits struct {
	Global Range
	Modes  map[string]Range
}

// For returns the effective range for operation. Operations without a mode
// range (including off) use the global range.
func (l Limits) For(operation string) Range {
	r, ok := l.Modes[operation]
	if !ok {
		return l.Global
	}
	if r.Min < l.Global.Min {
		r.Min = l.Global.Min
	}
	if r.Max > l.Global.Max {
		r.Max = l.Global.Max
	}
	return r
}

// LimitsFromConfig expects a normalized device config.
func LimitsFromConfig(l cfg.LimitsConfig) Limits {
	out := Limits{
		Global: Range{Min: cfg.DefaultMinTemp, Max: cfg.DefaultMaxTemp},
		Modes:  make(map[string]Range, len(l.Modes)),
	}
	if l.MinTemp != nil {
		out.Global.Min = *l.MinTemp
	}
	if l.MaxTemp != nil {
		out.Global.Max = *l.MaxTemp
	}
	for mode, r := range l.Modes {
		out.Modes[mode] = Range{Min: r.Min, Max: r.Max}
	}
	return out
}
