// internal/entity/device.go
package entity

import (
	"github.com/tamzrod/hws-coordinator/internal/registers"
)

// Set groups the entities of one device.
type Set struct {
	Heater  *WaterHeater
	Power   *PowerSwitch
	Mode    *ModeSelect
	Sensors []*Sensor
}

// NewSet builds entities from the device register map.
// Every field except power and mode becomes a sensor, in read order. Optional sensors
// (anything besides current and target temperature) are also heater attributes.
func NewSet(dev Device, m *registers.Map, limits Limits) *Set {
	var (
		modes    []string
		fallback string
		sensors  []*Sensor
		extra    []string
	)

	for _, s := range m.Specs() {
		switch s.Field {
		case registers.FieldMode:
			modes = s.ModeNames()
			fallback = s.Fallback
		case registers.FieldPower:
		case registers.FieldCurrentTemp, registers.FieldTargetTemp:
			sensors = append(sensors, NewSensor(dev, s.Field))
		default:
			sensors = append(sensors, NewSensor(dev, s.Field))
			extra = append(extra, s.Field)
		}
	}

	return &Set{
		Heater:  NewWaterHeater(dev, limits, modes, extra),
		Power:   NewPowerSwitch(dev),
		Mode:    NewModeSelect(dev, modes, fallback),
		Sensors: sensors,
	}
}
