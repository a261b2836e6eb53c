// internal/coordinator/modbus/client.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds connect and every request.
const DefaultTimeout = 5 * time.Second

// Config is minimal transport config.
type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

// Endpoint joins host and port into a dial address.
func Endpoint(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Client is a single Modbus TCP connection to one device.
// Requests are serialized; the connection is opened by Connect only and
// never re-dialed behind the caller's back.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// New creates a disconnected client.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus client: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		cfg: cfg,
		log: log.With().Str("endpoint", cfg.Endpoint).Uint8("unit_id", cfg.UnitID).Logger(),
	}, nil
}

// Connect dials the device. Calling it while connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	h := modbus.NewTCPClientHandler(c.cfg.Endpoint)
	h.Timeout = c.cfg.Timeout
	h.SlaveId = c.cfg.UnitID
	// Lifecycle is owned here; goburrow must not close idle connections.
	h.IdleTimeout = 0

	done := make(chan error, 1)
	go func() { done <- h.Connect() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				_ = h.Close()
			}
		}()
		return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
	}

	c.handler = h
	c.client = modbus.NewClient(h)
	c.log.Debug().Msg("connected")
	return nil
}

// Connected reports whether Connect succeeded and Close has not been called since.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// Close releases the connection. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler == nil {
		return nil
	}
	if err := c.handler.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close")
	}
	c.handler = nil
	c.client = nil
	c.log.Debug().Msg("disconnected")
	return nil
}

// ReadHoldingRegisters issues FC 3.
func (c *Client) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("%w: not connected", ErrTransport)
	}

	b, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, classify(err)
	}
	if len(b) != int(qty)*2 {
		return nil, fmt.Errorf("%w: read-registers payload %d bytes, want %d", ErrProtocol, len(b), int(qty)*2)
	}
	return unpackRegisters(b), nil
}

// WriteHoldingRegister issues FC 6.
func (c *Client) WriteHoldingRegister(addr, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return fmt.Errorf("%w: not connected", ErrTransport)
	}

	if _, err := c.client.WriteSingleRegister(addr, value); err != nil {
		return classify(err)
	}
	return nil
}

// classify splits device exceptions from everything else.
// goburrow reports socket errors, timeouts and framing mismatches as plain
// errors; all of them leave the stream in an unknown state.
func classify(err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return &ExceptionError{Function: mbErr.FunctionCode, Exception: mbErr.ExceptionCode}
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
