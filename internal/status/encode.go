// internal/status/encode.go
package status

import "time"

// Reserved document keys. Register fields may not use these names.
const (
	KeyDeviceID      = "device_id"
	KeyAt            = "at"
	KeyCycle         = "cycle"
	KeyAvailable     = "available"
	KeyOperation     = "operation"
	KeyHealth        = "health"
	KeyLastErrorCode = "last_error_code"
	KeyLastError     = "last_error"
)

// Encode flattens a Snapshot into a document for publishing and storage.
// Layout is fixed. No IO. No side effects.
func Encode(s Snapshot) map[string]any {
	doc := make(map[string]any, len(s.Values)+8)

	for k, v := range s.Values {
		doc[k] = v
	}

	doc[KeyDeviceID] = s.DeviceID
	doc[KeyCycle] = s.Cycle
	doc[KeyAvailable] = s.Available
	doc[KeyOperation] = s.Operation
	doc[KeyHealth] = HealthName(s.Health)
	doc[KeyLastErrorCode] = s.LastErrorCode
	if s.LastError != "" {
		doc[KeyLastError] = s.LastError
	}
	if !s.At.IsZero() {
		doc[KeyAt] = s.At.UTC().Format(time.RFC3339Nano)
	}

	return doc
}
