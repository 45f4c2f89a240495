// Package sim provides a simulated dive computer behind the real
// transport.Peripheral contract. It backs `import --sim` demos and lets
// tests exercise the bridge, decoder, and session exactly as a
// radio-backed peripheral would.
package sim

import (
	"errors"
	"sync"

	"github.com/tideworn/logbook/internal/decoder"
	"github.com/tideworn/logbook/internal/dive"
	"github.com/tideworn/logbook/internal/transport"
)

// Device is an in-memory dive computer. It answers a log request with
// encoded frames for every dive newer than the requested fingerprint,
// then an end frame.
type Device struct {
	ID   dive.DeviceID
	Name string

	mu       sync.Mutex
	mtu      int
	interval int
	dives    []*dive.Dive
	corrupt  map[int]bool
	req      []byte
	bridge   *transport.Bridge
	closed   bool
}

// NewDevice creates a device with no recorded dives.
func NewDevice(id dive.DeviceID, name string) *Device {
	return &Device{
		ID:       id,
		Name:     name,
		mtu:      64,
		interval: 10,
		corrupt:  make(map[int]bool),
	}
}

// SetMTU overrides the reported chunk size.
func (d *Device) SetMTU(n int) {
	d.mu.Lock()
	d.mtu = n
	d.mu.Unlock()
}

// AddDive records a dive on the device, stamping it with the device id.
// Dives are served oldest first, in insertion order.
func (d *Device) AddDive(dv *dive.Dive) {
	dv.Device = d.ID
	dv.DeviceName = d.Name
	d.mu.Lock()
	d.dives = append(d.dives, dv)
	d.mu.Unlock()
}

// CorruptDive marks the i-th recorded dive so its frame is served with a
// flipped payload byte, failing the checksum.
func (d *Device) CorruptDive(i int) {
	d.mu.Lock()
	d.corrupt[i] = true
	d.mu.Unlock()
}

// Dial wires a fresh bridge to the device and grants the initial
// flow-control credit.
func (d *Device) Dial(mode transport.WriteMode) *transport.Bridge {
	b := transport.NewBridge(d, mode)
	d.mu.Lock()
	d.bridge = b
	d.req = nil
	d.closed = false
	d.mu.Unlock()
	b.OnWriteReady()
	return b
}

// MTU implements transport.Peripheral.
func (d *Device) MTU() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtu
}

// Close implements transport.Peripheral.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// WriteChunk implements transport.Peripheral. Once the accumulated chunks
// form a complete log request, the response frames are pushed through the
// bridge before the write completes.
func (d *Device) WriteChunk(p []byte, mode transport.WriteMode) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New("device closed")
	}
	d.req = append(d.req, p...)
	req := append([]byte(nil), d.req...)
	b := d.bridge
	d.mu.Unlock()

	if requestComplete(req) {
		d.serve(b, req)
	}
	switch mode {
	case transport.WriteWithResponse:
		b.OnAck()
	default:
		b.OnWriteReady()
	}
	return nil
}

// requestComplete reports whether req holds a full 'L' 'O' 'G' fpLen fp
// request.
func requestComplete(req []byte) bool {
	if len(req) < 4 {
		return false
	}
	return len(req) >= 4+int(req[3])
}

func (d *Device) serve(b *transport.Bridge, req []byte) {
	since := dive.Fingerprint(req[4 : 4+int(req[3])])

	d.mu.Lock()
	dives := append([]*dive.Dive(nil), d.dives...)
	corrupt := make(map[int]bool, len(d.corrupt))
	for i := range d.corrupt {
		corrupt[i] = true
	}
	interval := d.interval
	d.mu.Unlock()

	start := 0
	for i, dv := range dives {
		if dv.Fingerprint.Equal(since) {
			start = i + 1
		}
	}
	for i := start; i < len(dives); i++ {
		frame := decoder.Encode(dives[i], interval)
		if corrupt[i] {
			frame[len(frame)-2] ^= 0xff
		}
		b.OnData(frame)
	}
	b.OnData(decoder.EncodeEnd())
}
