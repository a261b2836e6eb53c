// internal/coordinator/modbus/errors.go
package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection means the TCP connection could not be established.
	ErrConnection = errors.New("modbus: connection failed")

	// ErrTransport means the connection failed mid-session (socket error,
	// timeout, framing). The connection must be discarded.
	ErrTransport = errors.New("modbus: transport failure")

	// ErrProtocol means the device answered with an exception response
	// or a malformed payload. The connection stays usable.
	ErrProtocol = errors.New("modbus: protocol error")
)

// ExceptionError is a Modbus exception response from the device.
type ExceptionError struct {
	Function  byte
	Exception byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception: fc=%d code=%d", e.Function, e.Exception)
}

// Code exposes the raw exception code.
func (e *ExceptionError) Code() uint16 { return uint16(e.Exception) }

func (e *ExceptionError) Unwrap() error { return ErrProtocol }
