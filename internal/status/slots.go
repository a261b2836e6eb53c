// internal/status/slots.go
package status

// Status block layout in an external Modbus memory, one block per device.
// Offsets are relative to the device's base slot address.
const (
	SlotHealthCode    = 0
	SlotLastErrorCode = 1
	SlotAvailable     = 2
	SlotCycle         = 3

	SlotsPerDevice = 4
)

// Registers packs the status part of a snapshot into a status block.
// Cycle is truncated to its low 16 bits and wraps.
// No IO. No side effects.
func Registers(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)
	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	if s.Available {
		regs[SlotAvailable] = 1
	}
	regs[SlotCycle] = uint16(s.Cycle)
	return regs
}
