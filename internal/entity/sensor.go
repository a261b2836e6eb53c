// internal/entity/sensor.go
package entity

// Sensor is a read-only view of one field.
type Sensor struct {
	dev   Device
	field string
}

func NewSensor(dev Device, field string) *Sensor {
	return &Sensor{dev: dev, field: field}
}

func (s *Sensor) Field() string { return s.field }

// Available requires both a reachable device and a value for the field:
// a sensor whose register failed to read is unavailable on its own.
func (s *Sensor) Available() bool {
	snap := s.dev.Snapshot()
	return snap.Available && snap.Has(s.field)
}

func (s *Sensor) Value() (any, bool) {
	return s.dev.Snapshot().Value(s.field)
}
