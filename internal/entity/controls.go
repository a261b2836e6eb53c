// internal/entity/controls.go
package entity

import (
	"context"
	"fmt"
	"slices"

	"github.com/tamzrod/hws-coordinator/internal/registers"
)

// PowerSwitch controls the power register.
type PowerSwitch struct {
	dev Device
}

func NewPowerSwitch(dev Device) *PowerSwitch {
	return &PowerSwitch{dev: dev}
}

func (p *PowerSwitch) Available() bool {
	return p.dev.Snapshot().Available
}

// IsOn is false when power is unknown.
func (p *PowerSwitch) IsOn() bool {
	on, _ := p.dev.Snapshot().Bool(registers.FieldPower)
	return on
}

func (p *PowerSwitch) TurnOn(ctx context.Context) error {
	return submit(ctx, p.dev, registers.FieldPower, true)
}

func (p *PowerSwitch) TurnOff(ctx context.Context) error {
	return submit(ctx, p.dev, registers.FieldPower, false)
}

// ModeSelect controls the mode register without touching power.
type ModeSelect struct {
	dev      Device
	options  []string
	fallback string
}

func NewModeSelect(dev Device, options []string, fallback string) *ModeSelect {
	return &ModeSelect{dev: dev, options: slices.Clone(options), fallback: fallback}
}

func (m *ModeSelect) Available() bool {
	return m.dev.Snapshot().Available
}

func (m *ModeSelect) Options() []string {
	return slices.Clone(m.options)
}

// Current returns the decoded mode, or the fallback while unknown.
func (m *ModeSelect) Current() string {
	if mode, ok := m.dev.Snapshot().Text(registers.FieldMode); ok {
		return mode
	}
	return m.fallback
}

func (m *ModeSelect) Select(ctx context.Context, option string) error {
	if !slices.Contains(m.options, option) {
		return fmt.Errorf("%w: mode %q", ErrUnknownOption, option)
	}
	return submit(ctx, m.dev, registers.FieldMode, option)
}
