// internal/coordinator/coordinator_test.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/hws-coordinator/internal/coordinator/modbus"
	"github.com/tamzrod/hws-coordinator/internal/registers"
	"github.com/tamzrod/hws-coordinator/internal/status"
)

type regWrite struct {
	addr, value uint16
}

type fakeTransport struct {
	mu sync.Mutex

	regs       map[uint16]uint16
	readErr    map[uint16]error
	writeErr   map[uint16]error
	connectErr error

	connected bool
	connects  int
	closes    int
	reads     int
	writes    []regWrite
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		regs: map[uint16]uint16{
			0:   1,   // power on
			1:   1,   // eco
			2:   65,  // target
			102: 130, // 50 °C
			105: 72,
		},
		readErr:  map[uint16]error{},
		writeErr: map[uint16]error{},
	}
}

func exception(fc, code byte) error {
	return &modbus.ExceptionError{Function: fc, Exception: code}
}

var errBrokenPipe = fmt.Errorf("%w: broken pipe", modbus.ErrTransport)

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if !f.connected {
		return nil, fmt.Errorf("%w: not connected", modbus.ErrTransport)
	}
	if err := f.readErr[addr]; err != nil {
		return nil, err
	}
	return []uint16{f.regs[addr]}, nil
}

func (f *fakeTransport) WriteHoldingRegister(addr, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("%w: not connected", modbus.ErrTransport)
	}
	if err := f.writeErr[addr]; err != nil {
		return err
	}
	f.regs[addr] = value
	f.writes = append(f.writes, regWrite{addr, value})
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
	return nil
}

func (f *fakeTransport) set(fn func(f *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeTransport) written() []regWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]regWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeTransport) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func testMap(t *testing.T) *registers.Map {
	t.Helper()

	m, err := registers.NewMap(
		registers.Spec{Field: registers.FieldPower, Address: 0, Kind: registers.KindBoolean, Writable: true},
		registers.Spec{
			Field:    registers.FieldMode,
			Address:  1,
			Kind:     registers.KindEnumeratedMode,
			Modes:    map[uint16]string{1: "eco", 2: "performance", 4: "electric"},
			Fallback: "eco",
			Writable: true,
		},
		registers.Spec{Field: registers.FieldCurrentTemp, Address: 102, Kind: registers.KindScaledTemperature, Scale: 0.5, Offset: -15},
		registers.Spec{Field: registers.FieldTargetTemp, Address: 2, Kind: registers.KindScaledTemperature, Scale: 1, Writable: true},
		registers.Spec{Field: "exhaust_temp", Address: 105, Kind: registers.KindRawInteger},
	)
	require.NoError(t, err)
	return m
}

type fakeMetrics struct {
	mu        sync.Mutex
	cycles    int
	cycleErrs int
	writes    map[string][]bool
	available bool
}

func (m *fakeMetrics) ObserveCycle(_ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
	if err != nil {
		m.cycleErrs++
	}
}

func (m *fakeMetrics) ObserveWrite(_ string, field string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writes == nil {
		m.writes = map[string][]bool{}
	}
	m.writes[field] = append(m.writes[field], ok)
}

func (m *fakeMetrics) SetAvailable(_ string, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

func newTestCoordinator(t *testing.T, tr Transport) *Coordinator {
	t.Helper()

	c, err := New(Config{DeviceID: "hws-1", ScanInterval: time.Hour, Map: testMap(t)}, tr, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func TestNew_Rejects(t *testing.T) {
	m := testMap(t)
	tr := newFakeTransport()

	_, err := New(Config{Map: m}, tr, zerolog.Nop())
	assert.Error(t, err, "missing device id")

	_, err = New(Config{DeviceID: "x"}, tr, zerolog.Nop())
	assert.Error(t, err, "missing map")

	_, err = New(Config{DeviceID: "x", Map: m}, nil, zerolog.Nop())
	assert.Error(t, err, "missing transport")

	_, err = New(Config{DeviceID: "x", Map: m, ScanInterval: -time.Second}, tr, zerolog.Nop())
	assert.Error(t, err, "negative interval")
}

func TestNew_InitialSnapshot(t *testing.T) {
	c := newTestCoordinator(t, newFakeTransport())

	snap := c.Snapshot()
	assert.Equal(t, "hws-1", snap.DeviceID)
	assert.False(t, snap.Available)
	assert.Empty(t, snap.Values)
	assert.Equal(t, status.HealthUnknown, snap.Health)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{DeviceID: "x", Map: testMap(t)}, newFakeTransport(), zerolog.Nop())
	require.NoError(t, err)
	defer c.Shutdown()

	assert.Equal(t, DefaultScanInterval, c.cfg.ScanInterval)
	assert.Equal(t, "eco", c.cfg.DefaultMode)
}

func TestCycle_FullRead(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	c.Refresh()

	snap := c.Snapshot()
	require.True(t, snap.Available)
	assert.Equal(t, status.HealthOK, snap.Health)
	assert.Equal(t, StatePolling, c.State())
	assert.Equal(t, uint64(1), snap.Cycle)

	on, _ := snap.Bool(registers.FieldPower)
	assert.True(t, on)
	mode, _ := snap.Text(registers.FieldMode)
	assert.Equal(t, "eco", mode)
	temp, _ := snap.Float(registers.FieldCurrentTemp)
	assert.Equal(t, 50.0, temp)
	target, _ := snap.Float(registers.FieldTargetTemp)
	assert.Equal(t, 65.0, target)
	exhaust, _ := snap.Value("exhaust_temp")
	assert.Equal(t, 72, exhaust)

	assert.Equal(t, "eco", snap.Operation)
	assert.Equal(t, 1, tr.connects)
	assert.Equal(t, 5, tr.readCount())
}

func TestCycle_ReusesConnection(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	c.Refresh()
	c.Refresh()

	assert.Equal(t, 1, tr.connects)
	assert.Equal(t, uint64(2), c.Snapshot().Cycle)
}

func TestCycle_PartialReadKeepsAvailability(t *testing.T) {
	tr := newFakeTransport()
	tr.readErr[1] = exception(3, 2)
	tr.readErr[102] = exception(3, 4)
	c := newTestCoordinator(t, tr)

	c.Refresh()

	snap := c.Snapshot()
	assert.True(t, snap.Available)
	assert.Equal(t, status.HealthDegraded, snap.Health)
	assert.False(t, snap.Has(registers.FieldMode))
	assert.False(t, snap.Has(registers.FieldCurrentTemp))
	assert.True(t, snap.Has(registers.FieldTargetTemp))
	assert.Equal(t, "eco", snap.Operation, "default mode when mode is missing")
	assert.Equal(t, uint16(2), snap.LastErrorCode)
	assert.Contains(t, snap.LastError, "mode@1")
	assert.Equal(t, StatePolling, c.State())
}

func TestCycle_PowerReadFailureClearsAvailability(t *testing.T) {
	tr := newFakeTransport()
	tr.readErr[0] = exception(3, 2)
	c := newTestCoordinator(t, tr)

	c.Refresh()

	snap := c.Snapshot()
	assert.False(t, snap.Available)
	assert.True(t, snap.Has(registers.FieldCurrentTemp))
	assert.Equal(t, StatePolling, c.State(), "protocol errors keep the connection")
}

func TestCycle_PowerOffOperation(t *testing.T) {
	tr := newFakeTransport()
	tr.regs[0] = 0
	c := newTestCoordinator(t, tr)

	c.Refresh()

	assert.Equal(t, status.OperationOff, c.Snapshot().Operation)
}

func TestCycle_UnknownModeDecodesToFallback(t *testing.T) {
	tr := newFakeTransport()
	tr.regs[1] = 9
	c := newTestCoordinator(t, tr)

	c.Refresh()

	mode, _ := c.Snapshot().Text(registers.FieldMode)
	assert.Equal(t, "eco", mode)
}

func TestCycle_ConnectAlwaysFails(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = fmt.Errorf("%w: refused", modbus.ErrConnection)
	m := &fakeMetrics{}

	c, err := New(Config{DeviceID: "hws-1", ScanInterval: time.Hour, Map: testMap(t), Metrics: m}, tr, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	for i := 0; i < 3; i++ {
		c.Refresh()

		snap := c.Snapshot()
		assert.False(t, snap.Available)
		assert.Empty(t, snap.Values)
		assert.Equal(t, status.HealthError, snap.Health)
		assert.Equal(t, uint16(1), snap.LastErrorCode)
		assert.Equal(t, StateDisconnected, c.State())
	}

	assert.Equal(t, 3, tr.connects)
	assert.Equal(t, 0, tr.readCount())
	assert.Equal(t, 3, m.cycleErrs)
	assert.False(t, m.available)

	ok, err := c.SubmitWrite(context.Background(), registers.FieldPower, false)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, modbus.ErrConnection))
	assert.Empty(t, tr.written())
}

func TestCycle_TransportFailureKeepsPreviousValues(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	c.Refresh()
	before := c.Snapshot()
	require.True(t, before.Available)

	tr.set(func(f *fakeTransport) { f.readErr[2] = errBrokenPipe })
	c.Refresh()

	snap := c.Snapshot()
	assert.False(t, snap.Available)
	assert.Equal(t, before.Values, snap.Values)
	assert.Equal(t, before.Operation, snap.Operation)
	assert.Equal(t, status.HealthError, snap.Health)
	assert.Contains(t, snap.LastError, "broken pipe")
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, tr.closes)

	// next cycle reconnects and recovers
	tr.set(func(f *fakeTransport) { delete(f.readErr, 2) })
	c.Refresh()

	assert.True(t, c.Snapshot().Available)
	assert.Equal(t, 2, tr.connects)
}

func TestSubmitWrite_PowerOff(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	ok, err := c.SubmitWrite(context.Background(), registers.FieldPower, false)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []regWrite{{0, 0}}, tr.written())

	snap := c.Snapshot()
	assert.True(t, snap.Available)
	on, _ := snap.Bool(registers.FieldPower)
	assert.False(t, on)
	assert.Equal(t, status.OperationOff, snap.Operation)
}

func TestSubmitWrite_PowerOnFromZero(t *testing.T) {
	tr := newFakeTransport()
	tr.regs[0] = 0
	c := newTestCoordinator(t, tr)

	c.Refresh()
	on, _ := c.Snapshot().Bool(registers.FieldPower)
	require.False(t, on)
	before := tr.readCount()

	ok, err := c.SubmitWrite(context.Background(), registers.FieldPower, true)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []regWrite{{0, 1}}, tr.written())
	assert.Equal(t, before+c.Map().Len(), tr.readCount(), "full read cycle after the write")

	snap := c.Snapshot()
	assert.True(t, snap.Available)
	on, _ = snap.Bool(registers.FieldPower)
	assert.True(t, on)
	assert.Equal(t, "eco", snap.Operation)
}

func TestSubmitWrite_TargetTemperature(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	ok, err := c.SubmitWrite(context.Background(), registers.FieldTargetTemp, 60.0)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []regWrite{{2, 60}}, tr.written())
	target, _ := c.Snapshot().Float(registers.FieldTargetTemp)
	assert.Equal(t, 60.0, target)
}

func TestSubmitWrite_CompositeOperation(t *testing.T) {
	tr := newFakeTransport()
	tr.regs[0] = 0
	c := newTestCoordinator(t, tr)

	ok, err := c.SubmitWrite(context.Background(), registers.FieldOperationMode, "performance")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []regWrite{{1, 2}, {0, 1}}, tr.written())
	assert.Equal(t, "performance", c.Snapshot().Operation)
}

func TestSubmitWrite_CompositeOff(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	ok, err := c.SubmitWrite(context.Background(), registers.FieldOperationMode, status.OperationOff)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []regWrite{{0, 0}}, tr.written())
	assert.Equal(t, status.OperationOff, c.Snapshot().Operation)
}

func TestSubmitWrite_CompositeModeFailureSkipsPower(t *testing.T) {
	tr := newFakeTransport()
	tr.regs[0] = 0
	tr.writeErr[1] = exception(6, 3)
	m := &fakeMetrics{}

	c, err := New(Config{DeviceID: "hws-1", ScanInterval: time.Hour, Map: testMap(t), Metrics: m}, tr, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	ok, err := c.SubmitWrite(context.Background(), registers.FieldOperationMode, "electric")
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, modbus.ErrProtocol))

	assert.Empty(t, tr.written(), "power must not be written")

	// the cycle still polled afterwards
	snap := c.Snapshot()
	assert.True(t, snap.Available)
	assert.Equal(t, status.OperationOff, snap.Operation)
	assert.Equal(t, []bool{false}, m.writes[registers.FieldOperationMode])
}

func TestSubmitWrite_ValidationHasNoIO(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)
	ctx := context.Background()

	_, err := c.SubmitWrite(ctx, "nope", 1)
	assert.True(t, errors.Is(err, registers.ErrUnknownField))

	_, err = c.SubmitWrite(ctx, registers.FieldCurrentTemp, 50.0)
	assert.True(t, errors.Is(err, ErrReadOnly))

	_, err = c.SubmitWrite(ctx, registers.FieldMode, "turbo")
	assert.True(t, errors.Is(err, registers.ErrUnknownMode))

	_, err = c.SubmitWrite(ctx, registers.FieldOperationMode, "turbo")
	assert.True(t, errors.Is(err, registers.ErrUnknownMode))

	_, err = c.SubmitWrite(ctx, registers.FieldTargetTemp, 70000.0)
	assert.True(t, errors.Is(err, registers.ErrOutOfRange))

	assert.Equal(t, 0, tr.connects)
	assert.Empty(t, tr.written())
}

func TestSubmitWrite_ConcurrentFieldsShareOneDrain(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	// hold the cycle lock so both writes queue up
	c.cycleMu.Lock()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	submit := func(i int, field string, v any) {
		defer wg.Done()
		ok, err := c.SubmitWrite(context.Background(), field, v)
		assert.NoError(t, err)
		results[i] = ok
	}

	wg.Add(2)
	go submit(0, registers.FieldTargetTemp, 55.0)
	go submit(1, registers.FieldMode, "performance")

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 2
	}, time.Second, time.Millisecond)

	c.cycleMu.Unlock()
	wg.Wait()

	assert.Equal(t, []bool{true, true}, results)
	assert.Len(t, tr.written(), 2)
	assert.Equal(t, 5, tr.readCount(), "one poll for both writes")
	assert.Equal(t, uint64(1), c.Snapshot().Cycle)
}

func TestSubmitWrite_LastWriterWins(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	c.cycleMu.Lock()

	first := make(chan error, 1)
	go func() {
		_, err := c.SubmitWrite(context.Background(), registers.FieldTargetTemp, 50.0)
		first <- err
	}()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 1
	}, time.Second, time.Millisecond)

	second := make(chan bool, 1)
	go func() {
		ok, _ := c.SubmitWrite(context.Background(), registers.FieldTargetTemp, 60.0)
		second <- ok
	}()

	assert.True(t, errors.Is(<-first, ErrSuperseded))

	c.cycleMu.Unlock()
	assert.True(t, <-second)
	assert.Equal(t, []regWrite{{2, 60}}, tr.written())
}

func TestSubmitWrite_TransportFailureDuringDrain(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)
	c.Refresh()

	tr.set(func(f *fakeTransport) { f.writeErr[2] = errBrokenPipe })

	ok, err := c.SubmitWrite(context.Background(), registers.FieldTargetTemp, 55.0)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, modbus.ErrTransport))

	snap := c.Snapshot()
	assert.False(t, snap.Available)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestSubmitWrite_ContextCancelled(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	c.cycleMu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := c.SubmitWrite(ctx, registers.FieldPower, true)
	c.cycleMu.Unlock()

	assert.False(t, ok)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSubscribe_ReceivesLatest(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	ch, cancel := c.Subscribe()
	defer cancel()

	c.Refresh()
	c.Refresh()

	snap := <-ch
	assert.Equal(t, uint64(2), snap.Cycle, "slow subscriber sees only the newest")

	select {
	case <-ch:
		t.Fatal("unexpected extra snapshot")
	default:
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	c := newTestCoordinator(t, newFakeTransport())

	ch, cancel := c.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestShutdown(t *testing.T) {
	tr := newFakeTransport()
	c := newTestCoordinator(t, tr)

	ch, _ := c.Subscribe()
	c.Refresh()
	<-ch

	c.Shutdown()
	c.Shutdown()

	assert.Equal(t, StateShutdown, c.State())
	snap := c.Snapshot()
	assert.False(t, snap.Available)
	assert.Equal(t, status.HealthDisabled, snap.Health)
	assert.Equal(t, 1, tr.closes)

	last, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, status.HealthDisabled, last.Health)
	_, open := <-ch
	assert.False(t, open)

	ok, err := c.SubmitWrite(context.Background(), registers.FieldPower, true)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrShutdown))

	sub, _ := c.Subscribe()
	_, open = <-sub
	assert.False(t, open)
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	tr := newFakeTransport()
	c, err := New(Config{DeviceID: "hws-1", ScanInterval: 5 * time.Millisecond, Map: testMap(t)}, tr, zerolog.Nop())
	require.NoError(t, err)

	ch, _ := c.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := 0; i < 3; i++ {
		snap := <-ch
		assert.True(t, snap.Available)
	}

	cancel()
	require.NoError(t, <-done)

	assert.Error(t, c.Run(context.Background()), "second Run is rejected")
	c.Shutdown()
}

func TestRun_ShutdownStopsRun(t *testing.T) {
	tr := newFakeTransport()
	c, err := New(Config{DeviceID: "hws-1", ScanInterval: 5 * time.Millisecond, Map: testMap(t)}, tr, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool { return c.Snapshot().Available }, time.Second, time.Millisecond)

	c.Shutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestDeriveOperation(t *testing.T) {
	assert.Equal(t, "off", deriveOperation(map[string]any{registers.FieldPower: false, registers.FieldMode: "eco"}, "eco"))
	assert.Equal(t, "electric", deriveOperation(map[string]any{registers.FieldPower: true, registers.FieldMode: "electric"}, "eco"))
	assert.Equal(t, "eco", deriveOperation(map[string]any{registers.FieldPower: true}, "eco"))
	assert.Equal(t, "performance", deriveOperation(map[string]any{registers.FieldMode: "performance"}, "eco"))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, uint16(0), errorCode(nil))
	assert.Equal(t, uint16(1), errorCode(errors.New("x")))
	assert.Equal(t, uint16(4), errorCode(fmt.Errorf("wrap: %w", exception(3, 4))))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "writing", StateWriting.String())
	assert.Equal(t, "shutdown", StateShutdown.String())
}
