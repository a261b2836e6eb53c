// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

// statusChangeWriter forwards a snapshot to a StatusWriter only when the
// device status changed. On any delivery failure the next snapshot is
// forwarded unconditionally.
type statusChangeWriter struct {
	name string
	sw   StatusWriter

	mu       sync.Mutex
	needFull map[string]bool
	last     map[string]status.Snapshot
}

// NewStatusWriter adapts a StatusWriter into a Writer with change detection
// per device. The first snapshot of each device is always delivered.
func NewStatusWriter(name string, sw StatusWriter) Writer {
	return &statusChangeWriter{
		name:     name,
		sw:       sw,
		needFull: make(map[string]bool),
		last:     make(map[string]status.Snapshot),
	}
}

func (w *statusChangeWriter) Write(s status.Snapshot) error {
	if w.sw == nil {
		return errors.New("status writer: disabled")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	prev, seen := w.last[s.DeviceID]
	if seen && !w.needFull[s.DeviceID] && !statusChanged(prev, s) {
		return nil
	}

	if err := w.sw.WriteStatus(s); err != nil {
		// Delivery state is unknown; re-assert on next call.
		w.needFull[s.DeviceID] = true
		return fmt.Errorf("status writer %s: %w", w.name, err)
	}

	delete(w.needFull, s.DeviceID)
	w.last[s.DeviceID] = s
	return nil
}

func statusChanged(a, b status.Snapshot) bool {
	return a.Available != b.Available ||
		a.Health != b.Health ||
		a.LastErrorCode != b.LastErrorCode ||
		a.Operation != b.Operation
}
