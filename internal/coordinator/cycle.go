// internal/coordinator/cycle.go
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tamzrod/hws-coordinator/internal/coordinator/modbus"
	"github.com/tamzrod/hws-coordinator/internal/registers"
	"github.com/tamzrod/hws-coordinator/internal/status"
)

// runCycle performs exactly one drain + poll under the cycle lock.
// A kicked cycle with nothing left to drain is skipped: an earlier cycle
// already carried its writes.
func (c *Coordinator) runCycle(ctx context.Context, kicked bool) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	writes := c.takePending()
	defer c.complete(writes)

	if kicked && len(writes) == 0 {
		return
	}
	if ctx.Err() != nil {
		c.finishAll(writes, ErrShutdown)
		return
	}

	start := c.now()
	c.cycles++

	err := c.cycle(ctx, writes)
	c.metrics.ObserveCycle(c.cfg.DeviceID, c.now().Sub(start), err)
}

func (c *Coordinator) cycle(ctx context.Context, writes []*pendingWrite) error {
	if err := c.drain(ctx, writes); err != nil {
		return c.abort(ctx, err)
	}

	if err := c.ensureConnected(ctx); err != nil {
		return c.abort(ctx, err)
	}

	c.setState(StatePolling)

	snap, err := c.poll(ctx)
	if err != nil {
		return c.abort(ctx, err)
	}

	c.publish(snap, StatePolling)
	return nil
}

func (c *Coordinator) ensureConnected(ctx context.Context) error {
	if c.connected {
		return nil
	}

	c.setState(StateConnecting)
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	c.connected = true
	return nil
}

// poll reads every register once, in map order. Protocol errors leave the
// field absent; any other error aborts.
func (c *Coordinator) poll(ctx context.Context) (status.Snapshot, error) {
	values := make(map[string]any, len(c.specs))

	var (
		failed   int
		firstErr error
	)

	for _, s := range c.specs {
		if err := ctx.Err(); err != nil {
			return status.Snapshot{}, err
		}

		regs, err := c.transport.ReadHoldingRegisters(s.Address, 1)
		if err == nil && len(regs) != 1 {
			err = fmt.Errorf("%w: got %d registers, want 1", modbus.ErrProtocol, len(regs))
		}
		if err != nil {
			if !isProtocol(err) {
				return status.Snapshot{}, err
			}
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("read %s@%d: %w", s.Field, s.Address, err)
			}
			c.log.Debug().Err(err).Str("field", s.Field).Uint16("address", s.Address).Msg("register read failed")
			continue
		}

		values[s.Field] = registers.Decode(s, regs[0])
	}

	_, powerRead := values[registers.FieldPower]

	snap := status.Snapshot{
		DeviceID:  c.cfg.DeviceID,
		At:        c.now(),
		Cycle:     c.cycles,
		Values:    values,
		Operation: deriveOperation(values, c.cfg.DefaultMode),
		Available: powerRead,
		Health:    status.HealthOK,
	}
	if failed > 0 {
		snap.Health = status.HealthDegraded
		snap.LastError = firstErr.Error()
		snap.LastErrorCode = errorCode(firstErr)
	}

	return snap, nil
}

// abort ends a cycle that hit a connect or transport failure. The previous
// values are kept and availability is cleared. Cancellation from Shutdown
// only drops the connection.
func (c *Coordinator) abort(ctx context.Context, err error) error {
	_ = c.transport.Close()
	c.connected = false

	if ctx.Err() != nil {
		return err
	}

	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()

	snap.At = c.now()
	snap.Cycle = c.cycles
	snap.Available = false
	snap.Health = status.HealthError
	snap.LastError = err.Error()
	snap.LastErrorCode = errorCode(err)

	c.publish(snap, StateDisconnected)
	return err
}

// deriveOperation is "off" when power reads false, otherwise the mode.
func deriveOperation(values map[string]any, defaultMode string) string {
	if on, ok := values[registers.FieldPower].(bool); ok && !on {
		return status.OperationOff
	}
	if m, ok := values[registers.FieldMode].(string); ok {
		return m
	}
	return defaultMode
}

func isProtocol(err error) bool {
	return errors.Is(err, modbus.ErrProtocol)
}
