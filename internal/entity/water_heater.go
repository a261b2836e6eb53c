// internal/entity/water_heater.go
package entity

import (
	"context"
	"fmt"
	"slices"

	"github.com/tamzrod/hws-coordinator/internal/registers"
	"github.com/tamzrod/hws-coordinator/internal/status"
)

// WaterHeater is the main appliance view: current and target temperature,
// operation (off or a mode) and the optional sensors as attributes.
type WaterHeater struct {
	dev        Device
	limits     Limits
	operations []string
	sensors    []string
}

// NewWaterHeater offers off followed by modes, in the given order.
// sensors are the fields reported by Attributes.
func NewWaterHeater(dev Device, limits Limits, modes, sensors []string) *WaterHeater {
	ops := make([]string, 0, len(modes)+1)
	ops = append(ops, status.OperationOff)
	ops = append(ops, modes...)

	return &WaterHeater{
		dev:        dev,
		limits:     limits,
		operations: ops,
		sensors:    slices.Clone(sensors),
	}
}

func (h *WaterHeater) Available() bool {
	return h.dev.Snapshot().Available
}

func (h *WaterHeater) CurrentTemperature() (float64, bool) {
	return h.dev.Snapshot().Float(registers.FieldCurrentTemp)
}

func (h *WaterHeater) TargetTemperature() (float64, bool) {
	return h.dev.Snapshot().Float(registers.FieldTargetTemp)
}

// CurrentOperation is off until the first successful cycle.
func (h *WaterHeater) CurrentOperation() string {
	op := h.dev.Snapshot().Operation
	if op == "" {
		return status.OperationOff
	}
	return op
}

func (h *WaterHeater) OperationList() []string {
	return slices.Clone(h.operations)
}

// TargetRange is the allowed target range for the current operation.
func (h *WaterHeater) TargetRange() Range {
	return h.limits.For(h.CurrentOperation())
}

// Attributes returns the optional sensors present in the last snapshot.
func (h *WaterHeater) Attributes() map[string]any {
	snap := h.dev.Snapshot()
	out := make(map[string]any, len(h.sensors))
	for _, name := range h.sensors {
		if v, ok := snap.Value(name); ok {
			out[name] = v
		}
	}
	return out
}

// SetTemperature writes the target temperature after checking it against
// the range of the current operation.
func (h *WaterHeater) SetTemperature(ctx context.Context, t float64) error {
	r := h.TargetRange()
	if !r.Contains(t) {
		return fmt.Errorf("%w: %.1f not in [%.1f, %.1f]", ErrOutOfLimits, t, r.Min, r.Max)
	}
	return submit(ctx, h.dev, registers.FieldTargetTemp, t)
}

// SetOperationMode accepts off or any mode name.
func (h *WaterHeater) SetOperationMode(ctx context.Context, op string) error {
	if !slices.Contains(h.operations, op) {
		return fmt.Errorf("%w: operation %q", ErrUnknownOption, op)
	}
	return submit(ctx, h.dev, registers.FieldOperationMode, op)
}
