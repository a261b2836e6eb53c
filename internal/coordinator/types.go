// internal/coordinator/types.go
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/tamzrod/hws-coordinator/internal/registers"
)

var (
	// ErrSuperseded is returned to a write submitter whose pending value was
	// replaced by a later write to the same field before the drain.
	ErrSuperseded = errors.New("coordinator: write superseded")

	// ErrShutdown is returned for writes that will never be sent.
	ErrShutdown = errors.New("coordinator: shut down")

	// ErrReadOnly rejects writes to sensor fields.
	ErrReadOnly = errors.New("coordinator: field is read-only")
)

// State is the connection lifecycle of a coordinator.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StatePolling
	StateWriting
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePolling:
		return "polling"
	case StateWriting:
		return "writing"
	case StateShutdown:
		return "shutdown"
	default:
		return "disconnected"
	}
}

// Transport abstracts the single device connection.
// Implemented by internal/coordinator/modbus.Client.
type Transport interface {
	Connect(ctx context.Context) error
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) // FC 3
	WriteHoldingRegister(addr, value uint16) error           // FC 6
	Close() error
}

// Metrics receives cycle and write outcomes. Optional.
type Metrics interface {
	ObserveCycle(deviceID string, took time.Duration, err error)
	ObserveWrite(deviceID, field string, ok bool)
	SetAvailable(deviceID string, available bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(string, time.Duration, error) {}
func (nopMetrics) ObserveWrite(string, string, bool)         {}
func (nopMetrics) SetAvailable(string, bool)                 {}

// Config is the minimal runtime config the coordinator needs.
type Config struct {
	DeviceID     string
	ScanInterval time.Duration
	Map          *registers.Map

	// DefaultMode is reported as operation when the unit is on and the mode
	// register could not be read. Empty means the mode field's fallback.
	DefaultMode string

	Metrics Metrics
}

// DefaultScanInterval is used when Config.ScanInterval is zero.
const DefaultScanInterval = 60 * time.Second
