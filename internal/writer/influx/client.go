// internal/writer/influx/client.go
package influx

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// pointWriter is the part of api.WriteAPI the writer uses.
type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Writer sends one point per snapshot through the non-blocking write API.
// Delivery errors arrive asynchronously and are logged.
type Writer struct {
	client influxdb2.Client
	api    pointWriter
	log    zerolog.Logger
}

// New creates the client. No connection is made until the first flush.
func New(cfg Config, log zerolog.Logger) *Writer {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	wapi := client.WriteAPI(cfg.Org, cfg.Bucket)

	w := &Writer{client: client, api: wapi, log: log}
	go w.handleErrors(wapi)
	return w
}

func (w *Writer) handleErrors(wapi api.WriteAPI) {
	for err := range wapi.Errors() {
		w.log.Error().Err(err).Msg("influxdb write failed")
	}
}

func (w *Writer) Write(s status.Snapshot) error {
	w.api.WritePoint(Point(s))
	return nil
}

// Close flushes pending points and releases the client.
func (w *Writer) Close() error {
	w.api.Flush()
	if w.client != nil {
		w.client.Close()
	}
	return nil
}
