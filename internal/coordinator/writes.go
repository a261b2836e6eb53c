// internal/coordinator/writes.go
package coordinator

import (
	"context"
	"fmt"
	"sort"

	"github.com/tamzrod/hws-coordinator/internal/registers"
	"github.com/tamzrod/hws-coordinator/internal/status"
)

// step is one encoded register write.
type step struct {
	spec registers.Spec
	raw  uint16
}

type writeResult struct {
	err error
}

// pendingWrite is at most one per field. Steps are encoded at submit time
// so a value with no register representation never reaches the drain.
type pendingWrite struct {
	field string
	value any
	steps []step
	seq   uint64
	done  chan writeResult

	// set by finish, delivered by complete once the cycle has published
	result   error
	finished bool
}

// SubmitWrite queues value for field and triggers an immediate cycle.
// It returns true once every register write of the request succeeded and
// the read-back of the same cycle has been published.
// Validation errors return before any IO. A later write to the same field
// before the drain supersedes this one (false, ErrSuperseded).
//
// If ctx ends first the write stays queued and may still be sent.
func (c *Coordinator) SubmitWrite(ctx context.Context, field string, value any) (bool, error) {
	steps, err := c.plan(field, value)
	if err != nil {
		c.metrics.ObserveWrite(c.cfg.DeviceID, field, false)
		return false, err
	}

	w := &pendingWrite{
		field: field,
		value: value,
		steps: steps,
		done:  make(chan writeResult, 1),
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return false, ErrShutdown
	}
	c.seq++
	w.seq = c.seq
	if old, ok := c.pending[field]; ok {
		old.done <- writeResult{err: ErrSuperseded}
	}
	c.pending[field] = w
	c.mu.Unlock()

	c.kick()

	select {
	case r := <-w.done:
		return r.err == nil, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// plan validates and encodes a write request.
func (c *Coordinator) plan(field string, value any) ([]step, error) {
	if field == registers.FieldOperationMode {
		return c.planOperation(value)
	}

	s, ok := c.cfg.Map.Lookup(field)
	if !ok {
		return nil, fmt.Errorf("%w: %q", registers.ErrUnknownField, field)
	}
	if !s.Writable {
		return nil, fmt.Errorf("%w: %q", ErrReadOnly, field)
	}

	raw, err := registers.Encode(s, value)
	if err != nil {
		return nil, err
	}
	return []step{{spec: s, raw: raw}}, nil
}

// planOperation expands the composite operation mode:
// "off" writes power=0; a mode name writes mode, then power=1.
func (c *Coordinator) planOperation(value any) ([]step, error) {
	power, ok := c.cfg.Map.Lookup(registers.FieldPower)
	if !ok {
		return nil, fmt.Errorf("%w: %q requires %q", registers.ErrUnknownField, registers.FieldOperationMode, registers.FieldPower)
	}

	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: operation must be a string, got %T", registers.ErrUnknownMode, value)
	}

	if name == status.OperationOff {
		off, err := registers.Encode(power, false)
		if err != nil {
			return nil, err
		}
		return []step{{spec: power, raw: off}}, nil
	}

	mode, ok := c.cfg.Map.Lookup(registers.FieldMode)
	if !ok {
		return nil, fmt.Errorf("%w: %q requires %q", registers.ErrUnknownField, registers.FieldOperationMode, registers.FieldMode)
	}
	raw, err := registers.Encode(mode, name)
	if err != nil {
		return nil, err
	}
	on, err := registers.Encode(power, true)
	if err != nil {
		return nil, err
	}

	return []step{
		{spec: mode, raw: raw},
		{spec: power, raw: on},
	}, nil
}

// kick schedules one out-of-band cycle unless one is already queued.
func (c *Coordinator) kick() {
	c.mu.Lock()
	if c.kicked || c.closing {
		c.mu.Unlock()
		return
	}
	c.kicked = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.runCycle(c.ctx, true)
	}()
}

// takePending removes all pending writes in submission order.
func (c *Coordinator) takePending() []*pendingWrite {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.kicked = false
	if len(c.pending) == 0 {
		return nil
	}

	out := make([]*pendingWrite, 0, len(c.pending))
	for field, w := range c.pending {
		out = append(out, w)
		delete(c.pending, field)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// drain sends writes in submission order. Device exceptions fail only the
// affected request; a transport failure fails the rest and is returned.
func (c *Coordinator) drain(ctx context.Context, writes []*pendingWrite) error {
	if len(writes) == 0 {
		return nil
	}

	c.setState(StateWriting)

	if err := c.ensureConnected(ctx); err != nil {
		c.finishAll(writes, err)
		return err
	}

	for i, w := range writes {
		if err := ctx.Err(); err != nil {
			c.finishAll(writes[i:], ErrShutdown)
			return err
		}

		err := c.apply(ctx, w)
		if err != nil && !isProtocol(err) {
			c.finishAll(writes[i:], err)
			return err
		}
		c.finish(w, err)
	}

	return nil
}

// apply runs the steps of one request and stops at the first failure.
func (c *Coordinator) apply(ctx context.Context, w *pendingWrite) error {
	for i, s := range w.steps {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := c.transport.WriteHoldingRegister(s.spec.Address, s.raw); err != nil {
			return fmt.Errorf("write %s@%d=%d: %w", s.spec.Field, s.spec.Address, s.raw, err)
		}
	}
	return nil
}

func (c *Coordinator) finish(w *pendingWrite, err error) {
	ok := err == nil
	c.metrics.ObserveWrite(c.cfg.DeviceID, w.field, ok)

	if ok {
		c.log.Debug().Str("field", w.field).Interface("value", w.value).Msg("write ok")
	} else {
		c.log.Error().Err(err).Str("field", w.field).Interface("value", w.value).Msg("write failed")
	}

	w.result = err
	w.finished = true
}

func (c *Coordinator) finishAll(writes []*pendingWrite, err error) {
	for _, w := range writes {
		c.finish(w, err)
	}
}

// complete hands results to the waiting submitters.
func (c *Coordinator) complete(writes []*pendingWrite) {
	for _, w := range writes {
		if !w.finished {
			w.result = ErrShutdown
		}
		w.done <- writeResult{err: w.result}
	}
}
