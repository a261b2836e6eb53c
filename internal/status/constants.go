// internal/status/constants.go
package status

// Health codes carried by every Snapshot.
// These values are published verbatim and MUST NOT be renumbered.

// HealthUnknown represents the boot state before the first cycle.
const HealthUnknown uint16 = 0

// HealthOK represents a cycle where every register was read.
const HealthOK uint16 = 1

// HealthError represents a failed cycle (connect or transport failure).
const HealthError uint16 = 2

// HealthDegraded represents a cycle where at least one register read failed.
const HealthDegraded uint16 = 3

// HealthDisabled represents a coordinator that has been shut down.
const HealthDisabled uint16 = 4

// OperationOff is the derived operation when the unit is powered down.
const OperationOff = "off"

// HealthName returns a stable lowercase label for a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthDegraded:
		return "degraded"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
