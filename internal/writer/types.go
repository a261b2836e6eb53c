// internal/writer/types.go
package writer

import "github.com/tamzrod/hws-coordinator/internal/status"

// Writer delivers published snapshots to one destination.
type Writer interface {
	Write(s status.Snapshot) error
}

// StatusWriter is the delivery-only contract for device status
// (availability, health, last error). It receives a snapshot and writes it
// verbatim. No logic, no state, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// Sink is one named destination in a fan-out.
type Sink struct {
	Name   string
	Writer Writer
}
