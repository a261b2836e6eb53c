// internal/writer/builder.go
package writer

import (
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/hws-coordinator/internal/config"
	"github.com/tamzrod/hws-coordinator/internal/writer/history"
	"github.com/tamzrod/hws-coordinator/internal/writer/influx"
	"github.com/tamzrod/hws-coordinator/internal/writer/modbus"
)

// Build opens the storage sinks enabled in config and returns them with a
// closer for all of them. Sinks that need more than config (MQTT, metrics)
// are passed in as extra.
func Build(c cfg.Config, log zerolog.Logger, extra ...Sink) (Writer, func() error, error) {
	var (
		sinks   []Sink
		closers []func() error
	)

	closeAll := func() error {
		var last error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				last = err
			}
		}
		return last
	}

	if c.History.Enabled {
		store, err := history.Open(c.History.Path)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		sinks = append(sinks,
			Sink{Name: "history", Writer: store},
			Sink{Name: "history-status", Writer: NewStatusWriter("history", store)},
		)
		closers = append(closers, store.Close)
	}

	if c.InfluxDB.Enabled {
		iw := influx.New(influx.Config{
			URL:           c.InfluxDB.URL,
			Token:         c.InfluxDB.Token,
			Org:           c.InfluxDB.Org,
			Bucket:        c.InfluxDB.Bucket,
			BatchSize:     c.InfluxDB.BatchSize,
			FlushInterval: time.Duration(c.InfluxDB.FlushIntervalS) * time.Second,
		}, log.With().Str("component", "influxdb").Logger())
		sinks = append(sinks, Sink{Name: "influxdb", Writer: iw})
		closers = append(closers, iw.Close)
	}

	if c.StatusMemory.Enabled {
		cli, err := modbus.NewEndpointClient(modbus.Config{
			Endpoint: c.StatusMemory.Endpoint,
			Timeout:  time.Duration(c.StatusMemory.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}

		slots := make(map[string]uint16)
		for _, d := range c.Devices {
			if d.StatusSlot != nil {
				slots[d.ID] = *d.StatusSlot
			}
		}

		block := modbus.NewStatusBlockWriter(cli, c.StatusMemory.UnitID, slots)
		sinks = append(sinks, Sink{Name: "status-memory", Writer: block})
		closers = append(closers, cli.Close)
	}

	sinks = append(sinks, extra...)

	return New(sinks...), closeAll, nil
}
