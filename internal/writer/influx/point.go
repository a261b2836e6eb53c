// internal/writer/influx/point.go
package influx

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

// Measurement is the InfluxDB measurement for water heater snapshots.
const Measurement = "water_heater"

// Point converts a snapshot into one point tagged by device.
// Register values of an unavailable snapshot are stale and are left out.
// No IO. No side effects.
func Point(s status.Snapshot) *write.Point {
	fields := map[string]interface{}{
		"available":       s.Available,
		"health":          int64(s.Health),
		"last_error_code": int64(s.LastErrorCode),
	}

	if s.Available {
		if s.Operation != "" {
			fields["operation"] = s.Operation
		}
		for k, v := range s.Values {
			switch x := v.(type) {
			case float64:
				fields[k] = x
			case int:
				fields[k] = int64(x)
			case bool:
				fields[k] = x
			case string:
				fields[k] = x
			}
		}
	}

	at := s.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		Measurement,
		map[string]string{"device_id": s.DeviceID},
		fields,
		at,
	)
}
