// internal/entity/entity.go
package entity

import (
	"context"
	"errors"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

var (
	// ErrOutOfLimits rejects a target temperature outside the allowed range
	// for the current operation.
	ErrOutOfLimits = errors.New("entity: target temperature out of limits")

	// ErrUnknownOption rejects a mode or operation not offered by the device.
	ErrUnknownOption = errors.New("entity: unknown option")

	// ErrNotApplied is returned when the coordinator reports the write as
	// not applied without an error.
	ErrNotApplied = errors.New("entity: write not applied")
)

// Device is what entities need from a coordinator.
type Device interface {
	DeviceID() string
	Snapshot() status.Snapshot
	SubmitWrite(ctx context.Context, field string, value any) (bool, error)
}

// submit turns the coordinator's (ok, err) pair into a single error.
func submit(ctx context.Context, dev Device, field string, value any) error {
	ok, err := dev.SubmitWrite(ctx, field, value)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotApplied
	}
	return nil
}
