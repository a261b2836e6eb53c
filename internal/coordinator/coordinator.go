// internal/coordinator/coordinator.go
package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/hws-coordinator/internal/registers"
	"github.com/tamzrod/hws-coordinator/internal/status"
)

// Coordinator owns one device connection. All register IO runs inside a
// cycle and cycles never overlap.
type Coordinator struct {
	cfg       Config
	specs     []registers.Spec
	transport Transport
	metrics   Metrics
	log       zerolog.Logger
	now       func() time.Time

	// cycleMu is held for a whole cycle. Fields below it are owned by the
	// cycle holder.
	cycleMu   sync.Mutex
	connected bool
	cycles    uint64

	// mu guards everything below it.
	mu      sync.Mutex
	state   State
	snap    status.Snapshot
	pending map[string]*pendingWrite
	seq     uint64
	kicked  bool
	closing bool
	subs    map[int]chan status.Snapshot
	nextSub int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a coordinator with an empty, unavailable snapshot.
// No IO happens until Run or SubmitWrite.
func New(cfg Config, transport Transport, log zerolog.Logger) (*Coordinator, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("coordinator: device id required")
	}
	if cfg.Map == nil || cfg.Map.Len() == 0 {
		return nil, errors.New("coordinator: register map is empty")
	}
	if transport == nil {
		return nil, errors.New("coordinator: transport required")
	}
	if cfg.ScanInterval < 0 {
		return nil, errors.New("coordinator: scan interval must be >= 0")
	}
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.DefaultMode == "" {
		if m, ok := cfg.Map.Lookup(registers.FieldMode); ok {
			cfg.DefaultMode = m.Fallback
		}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		cfg:       cfg,
		specs:     cfg.Map.Specs(),
		transport: transport,
		metrics:   cfg.Metrics,
		log:       log.With().Str("device_id", cfg.DeviceID).Str("component", "coordinator").Logger(),
		now:       time.Now,
		state:     StateDisconnected,
		snap: status.Snapshot{
			DeviceID: cfg.DeviceID,
			Values:   map[string]any{},
			Health:   status.HealthUnknown,
		},
		pending: make(map[string]*pendingWrite),
		subs:    make(map[int]chan status.Snapshot),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// DeviceID identifies the coordinated device.
func (c *Coordinator) DeviceID() string { return c.cfg.DeviceID }

// Map is the register map in use.
func (c *Coordinator) Map() *registers.Map { return c.cfg.Map }

// Snapshot returns the last published state.
func (c *Coordinator) Snapshot() status.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel receiving every published snapshot.
// Slow subscribers only see the latest one. The channel is closed on
// Shutdown or when cancel is called.
func (c *Coordinator) Subscribe() (<-chan status.Snapshot, func()) {
	ch := make(chan status.Snapshot, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Run polls immediately and then every scan interval until ctx is done
// or Shutdown is called. It never returns a device error.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("coordinator: already running")
	}
	defer close(c.done)

	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	c.log.Info().Dur("scan_interval", c.cfg.ScanInterval).Msg("coordinator started")

	ticker := time.NewTicker(c.cfg.ScanInterval)
	defer ticker.Stop()

	c.runCycle(runCtx, false)

	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.C:
			c.runCycle(runCtx, false)
		}
	}
}

// Refresh runs one cycle now and returns after it has been published.
func (c *Coordinator) Refresh() {
	c.runCycle(c.ctx, false)
}

// Shutdown cancels the in-flight cycle, fails undrained writes, closes the
// transport and closes all subscriptions. Safe to call repeatedly.
func (c *Coordinator) Shutdown() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		c.cancel()
		c.wg.Wait()
		if c.running.Load() {
			<-c.done
		}

		c.cycleMu.Lock()
		defer c.cycleMu.Unlock()

		_ = c.transport.Close()
		c.connected = false

		c.mu.Lock()
		defer c.mu.Unlock()

		for field, w := range c.pending {
			w.done <- writeResult{err: ErrShutdown}
			delete(c.pending, field)
		}

		snap := c.snap
		snap.At = c.now()
		snap.Available = false
		snap.Health = status.HealthDisabled
		c.snap = snap
		c.state = StateShutdown

		for id, ch := range c.subs {
			deliver(ch, snap)
			close(ch)
			delete(c.subs, id)
		}

		c.metrics.SetAvailable(c.cfg.DeviceID, false)
		c.log.Info().Msg("coordinator stopped")
	})
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state")
	}
}

// publish stores snap and notifies subscribers. Caller must not hold mu.
func (c *Coordinator) publish(snap status.Snapshot, state State) {
	c.mu.Lock()
	prev := c.snap
	c.snap = snap
	c.state = state
	for _, ch := range c.subs {
		deliver(ch, snap)
	}
	c.mu.Unlock()

	c.metrics.SetAvailable(c.cfg.DeviceID, snap.Available)

	switch {
	case prev.Available && !snap.Available:
		c.log.Warn().Str("error", snap.LastError).Uint16("error_code", snap.LastErrorCode).Msg("device unavailable")
	case !prev.Available && snap.Available:
		c.log.Info().Msg("device available")
	}
}

// deliver replaces any unread snapshot with the newest one.
func deliver(ch chan status.Snapshot, snap status.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// errorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns 1 (generic error).
func errorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coder interface{ Code() uint16 }

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return 1
}
