// internal/sim/device.go
package sim

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/tbrandon/mbserver"
)

// Default register layout of the simulated heat pump.
const (
	AddrPower         uint16 = 0
	AddrMode          uint16 = 1
	AddrTargetTemp    uint16 = 2
	AddrTankTopTemp   uint16 = 101
	AddrTankBottom    uint16 = 102
	AddrCondensorTemp uint16 = 103
	AddrOutdoorTemp   uint16 = 104
	AddrExhaustTemp   uint16 = 105
	AddrSuctionTemp   uint16 = 106
)

// Mode codes.
const (
	ModeEco         uint16 = 1
	ModePerformance uint16 = 2
	ModeElectric    uint16 = 4
)

// Exception codes accepted by Fail.
const (
	ExIllegalDataAddress byte = 2
	ExIllegalDataValue   byte = 3
	ExDeviceFailure      byte = 4
)

// Write records one register accepted by FC 6 or FC 16.
type Write struct {
	Address uint16
	Value   uint16
}

// Device is an in-process Modbus/TCP heat pump.
// Only FC 3, FC 6 and FC 16 are served. Unset addresses answer with
// illegal data address.
type Device struct {
	mu     sync.Mutex
	regs   map[uint16]uint16
	faults map[uint16]byte
	writes []Write

	serv *mbserver.Server
	addr string
}

// New returns a device preloaded with the default layout:
// powered on, eco mode, target 65 °C, tank at 50 °C.
func New() *Device {
	return &Device{
		regs: map[uint16]uint16{
			AddrPower:         1,
			AddrMode:          ModeEco,
			AddrTargetTemp:    65,
			AddrTankTopTemp:   140, // 55 °C
			AddrTankBottom:    130, // 50 °C
			AddrCondensorTemp: 120, // 45 °C
			AddrOutdoorTemp:   60,  // 15 °C
			AddrExhaustTemp:   72,
			AddrSuctionTemp:   50, // 10 °C
		},
		faults: map[uint16]byte{},
	}
}

// Listen starts serving on addr (host:port).
func (d *Device) Listen(addr string) error {
	s := mbserver.NewServer()
	s.RegisterFunctionHandler(3, d.readHolding)
	s.RegisterFunctionHandler(6, d.writeHolding)
	s.RegisterFunctionHandler(16, d.writeMultiple)

	if err := s.ListenTCP(addr); err != nil {
		return fmt.Errorf("sim: listen %s: %w", addr, err)
	}

	d.mu.Lock()
	d.serv = s
	d.addr = addr
	d.mu.Unlock()
	return nil
}

// ListenLocal serves on a free loopback port and returns the address.
func (d *Device) ListenLocal() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("sim: reserve port: %w", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	if err := d.Listen(addr); err != nil {
		return "", err
	}
	return addr, nil
}

// Addr is the listen address, empty before Listen.
func (d *Device) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Close stops the server and drops open connections.
func (d *Device) Close() {
	d.mu.Lock()
	s := d.serv
	d.serv = nil
	d.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// Set stores a raw register value.
func (d *Device) Set(addr, value uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[addr] = value
}

// Get returns a raw register value and whether the address exists.
func (d *Device) Get(addr uint16) (uint16, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.regs[addr]
	return v, ok
}

// Remove makes addr unmapped.
func (d *Device) Remove(addr uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.regs, addr)
}

// Fail makes every request touching addr answer with the exception code.
func (d *Device) Fail(addr uint16, code byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[addr] = code
}

// Heal clears an injected fault.
func (d *Device) Heal(addr uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.faults, addr)
}

// Writes returns the accepted writes in arrival order.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// Addresses lists mapped addresses in ascending order.
func (d *Device) Addresses() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint16, 0, len(d.regs))
	for a := range d.regs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Step moves the tank temperatures one raw unit toward the target while
// powered, and lets them cool one unit otherwise. Used by the standalone
// simulator to give readings some motion.
func (d *Device) Step() {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Target is whole °C; tank registers are 0.5 °C steps offset by -15.
	goal := (d.regs[AddrTargetTemp] + 15) * 2
	for _, a := range []uint16{AddrTankTopTemp, AddrTankBottom} {
		v := d.regs[a]
		switch {
		case d.regs[AddrPower] != 0 && v < goal:
			d.regs[a] = v + 1
		case d.regs[AddrPower] == 0 && v > 0:
			d.regs[a] = v - 1
		}
	}
}

func (d *Device) readHolding(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) != 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(data[0:2])
	qty := binary.BigEndian.Uint16(data[2:4])
	if qty == 0 || qty > 125 || int(start)+int(qty) > 65536 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	resp := make([]byte, 1+2*int(qty))
	resp[0] = byte(2 * qty)
	for i := 0; i < int(qty); i++ {
		a := start + uint16(i)
		if code, ok := d.faults[a]; ok {
			return exception(code)
		}
		v, ok := d.regs[a]
		if !ok {
			return []byte{}, &mbserver.IllegalDataAddress
		}
		binary.BigEndian.PutUint16(resp[1+2*i:], v)
	}
	return resp, &mbserver.Success
}

func (d *Device) writeHolding(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) != 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	d.mu.Lock()
	defer d.mu.Unlock()

	if code, ok := d.faults[addr]; ok {
		return exception(code)
	}
	if _, ok := d.regs[addr]; !ok {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	d.regs[addr] = value
	d.writes = append(d.writes, Write{Address: addr, Value: value})

	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

func (d *Device) writeMultiple(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(data[0:2])
	qty := binary.BigEndian.Uint16(data[2:4])
	if qty == 0 || qty > 123 || int(data[4]) != 2*int(qty) || len(data) != 5+2*int(qty) {
		return []byte{}, &mbserver.IllegalDataValue
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := uint16(0); i < qty; i++ {
		a := start + i
		if code, ok := d.faults[a]; ok {
			return exception(code)
		}
		if _, ok := d.regs[a]; !ok {
			return []byte{}, &mbserver.IllegalDataAddress
		}
	}
	for i := uint16(0); i < qty; i++ {
		v := binary.BigEndian.Uint16(data[5+2*i:])
		d.regs[start+i] = v
		d.writes = append(d.writes, Write{Address: start + i, Value: v})
	}

	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

func exception(code byte) ([]byte, *mbserver.Exception) {
	ex := mbserver.Exception(code)
	return []byte{}, &ex
}
