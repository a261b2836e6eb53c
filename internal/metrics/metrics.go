// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

const namespace = "hws"

// Metrics collects coordinator outcomes and the latest numeric readings.
// It satisfies coordinator.Metrics and writer.Writer.
type Metrics struct {
	reg *prometheus.Registry

	cycles       *prometheus.CounterVec
	cycleSeconds *prometheus.HistogramVec
	writes       *prometheus.CounterVec
	available    *prometheus.GaugeVec
	values       *prometheus.GaugeVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"device_id", "result"}),
		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_seconds",
			Help:      "Duration of a poll cycle including writes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"device_id"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Write requests by field and outcome.",
		}, []string{"device_id", "field", "result"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_available",
			Help:      "1 when the power register was read in the last cycle.",
		}, []string{"device_id"}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_value",
			Help:      "Latest decoded numeric register value.",
		}, []string{"device_id", "field"}),
	}

	m.reg.MustRegister(m.cycles, m.cycleSeconds, m.writes, m.available, m.values)
	return m
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) ObserveCycle(deviceID string, took time.Duration, err error) {
	m.cycles.WithLabelValues(deviceID, result(err == nil)).Inc()
	m.cycleSeconds.WithLabelValues(deviceID).Observe(took.Seconds())
}

func (m *Metrics) ObserveWrite(deviceID, field string, ok bool) {
	m.writes.WithLabelValues(deviceID, field, result(ok)).Inc()
}

func (m *Metrics) SetAvailable(deviceID string, available bool) {
	v := 0.0
	if available {
		v = 1
	}
	m.available.WithLabelValues(deviceID).Set(v)
}

// Write exports numeric and boolean fields of an available snapshot.
// Unavailable snapshots leave the last readings in place.
func (m *Metrics) Write(snap status.Snapshot) error {
	if !snap.Available {
		return nil
	}
	for field, v := range snap.Values {
		switch x := v.(type) {
		case float64:
			m.values.WithLabelValues(snap.DeviceID, field).Set(x)
		case int:
			m.values.WithLabelValues(snap.DeviceID, field).Set(float64(x))
		case bool:
			b := 0.0
			if x {
				b = 1
			}
			m.values.WithLabelValues(snap.DeviceID, field).Set(b)
		}
	}
	return nil
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint until ctx is done.
func (m *Metrics) Serve(ctx context.Context, listen string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("listen", listen).Msg("metrics endpoint started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
