// internal/writer/modbus/status.go
package modbus

import (
	"fmt"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

// registerWriter is the exact contract the status block writer uses.
type registerWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// StatusBlockWriter mirrors each device's status block into a Modbus
// memory so that SCADA-style readers can poll it.
// Devices without a slot are ignored.
type StatusBlockWriter struct {
	cli    registerWriter
	unitID uint8
	slots  map[string]uint16 // device id -> base address
}

func NewStatusBlockWriter(cli registerWriter, unitID uint8, slots map[string]uint16) *StatusBlockWriter {
	cp := make(map[string]uint16, len(slots))
	for k, v := range slots {
		cp[k] = v
	}
	return &StatusBlockWriter{cli: cli, unitID: unitID, slots: cp}
}

// Write mirrors every snapshot so that the cycle slot advances each poll
// and readers can use it as a heartbeat.
func (w *StatusBlockWriter) Write(s status.Snapshot) error {
	return w.WriteStatus(s)
}

// WriteStatus writes the full block for the snapshot's device.
func (w *StatusBlockWriter) WriteStatus(s status.Snapshot) error {
	base, ok := w.slots[s.DeviceID]
	if !ok {
		return nil
	}

	if err := w.cli.WriteRegisters(w.unitID, base, status.Registers(s)); err != nil {
		return fmt.Errorf("status block: unit=%d addr=%d err=%w", w.unitID, base, err)
	}
	return nil
}
