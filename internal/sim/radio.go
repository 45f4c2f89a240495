package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tideworn/logbook/internal/dive"
	"github.com/tideworn/logbook/internal/transport"
)

// Radio is a fake radio stack serving registered simulated devices by
// target name. Connect honors the context, so tests can exercise the
// connect timeout with a delay longer than the session allows.
type Radio struct {
	mu      sync.Mutex
	devices map[string]*Device
	delay   time.Duration
	mode    transport.WriteMode
}

// NewRadio creates a radio with no devices, using confirmed-delivery
// writes.
func NewRadio() *Radio {
	return &Radio{
		devices: make(map[string]*Device),
		mode:    transport.WriteWithResponse,
	}
}

// Register makes a device reachable under target.
func (r *Radio) Register(target string, d *Device) {
	r.mu.Lock()
	r.devices[target] = d
	r.mu.Unlock()
}

// SetConnectDelay makes every Connect take at least d before the
// transport is ready.
func (r *Radio) SetConnectDelay(d time.Duration) {
	r.mu.Lock()
	r.delay = d
	r.mu.Unlock()
}

// SetWriteMode changes the write mode used for new connections.
func (r *Radio) SetWriteMode(mode transport.WriteMode) {
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
}

// Connect implements session.Radio.
func (r *Radio) Connect(ctx context.Context, target string) (*transport.Bridge, dive.DeviceID, string, error) {
	r.mu.Lock()
	d, ok := r.devices[target]
	delay := r.delay
	mode := r.mode
	r.mu.Unlock()

	if !ok {
		return nil, "", "", fmt.Errorf("no device at %q", target)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, "", "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, "", "", err
	}
	return d.Dial(mode), d.ID, d.Name, nil
}
