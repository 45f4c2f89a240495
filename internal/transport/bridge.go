package transport

import (
	"fmt"
	"sync"
	"time"
)

// defaultMTU is the fallback chunk size when a peripheral reports no
// negotiated MTU. 20 bytes is the BLE 4.x ATT minimum payload.
const defaultMTU = 20

// Bridge adapts an asynchronous Peripheral into the blocking Stream
// contract.
//
// Thread-safety model:
//   - Read/Write: called from exactly one goroutine (the import worker)
//   - OnData/OnWriteReady/OnAck/OnDisconnect: safe from any radio thread
//   - Close: safe from any goroutine; unblocks in-flight Read/Write
//
// All shared state is guarded by one mutex per bridge. The signal channels
// are buffered size 1 so multiple notifications coalesce; the read loop
// re-checks the buffer after every wake because a wake may be stale.
type Bridge struct {
	p    Peripheral
	mode WriteMode

	mu     sync.Mutex
	buf    []byte
	closed bool

	dataSig  chan struct{}   // inbound bytes appended
	readySig chan struct{}   // flow-control credit available
	ackSig   chan struct{}   // last chunk acknowledged
	done     chan struct{}   // closed on Close; unblocks all waiters
	cancel   <-chan struct{} // optional session cancel; nil blocks forever

	closeOnce sync.Once
}

// NewBridge wraps p in a blocking bridge using the given write mode.
// The radio glue must route its callbacks to OnData, OnWriteReady, OnAck,
// and OnDisconnect before any traffic flows.
func NewBridge(p Peripheral, mode WriteMode) *Bridge {
	return &Bridge{
		p:        p,
		mode:     mode,
		buf:      make([]byte, 0, 512),
		dataSig:  make(chan struct{}, 1),
		readySig: make(chan struct{}, 1),
		ackSig:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// BindCancel attaches a session cancellation signal. A blocked Read or
// Write observes the signal while waiting and returns ErrCancelled; a call
// already past its wait finishes normally. Must be set before I/O starts.
func (b *Bridge) BindCancel(cancel <-chan struct{}) {
	b.cancel = cancel
}

// OnData receives one inbound notification payload. Called by the radio
// stack on an arbitrary thread; the payload is copied before the callback
// returns.
func (b *Bridge) OnData(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.buf = append(b.buf, p...)
	b.mu.Unlock()

	signal(b.dataSig)
}

// OnWriteReady reports a flow-control credit: the link can accept another
// unacknowledged chunk.
func (b *Bridge) OnWriteReady() {
	signal(b.readySig)
}

// OnAck reports acknowledgment of the most recent confirmed-delivery chunk.
func (b *Bridge) OnAck() {
	signal(b.ackSig)
}

// OnDisconnect reports that the link dropped from the radio side. Any
// blocked Read/Write returns ErrDisconnected.
func (b *Bridge) OnDisconnect() {
	_ = b.Close()
}

// Read implements Stream. It returns as soon as any bytes are buffered,
// waiting at most timeout for the first byte to arrive.
func (b *Bridge) Read(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if len(b.buf) > 0 {
			n := copy(p, b.buf)
			b.buf = b.buf[n:]
			if len(b.buf) == 0 {
				// Reset to recycle capacity instead of growing forever.
				b.buf = b.buf[:0]
			}
			b.mu.Unlock()
			return n, nil
		}
		if b.closed {
			b.mu.Unlock()
			return 0, ErrDisconnected
		}
		b.mu.Unlock()

		select {
		case <-b.dataSig:
			// Re-check the buffer; this wake may be stale.
		case <-b.done:
			return 0, ErrDisconnected
		case <-b.cancel:
			return 0, ErrCancelled
		case <-timer.C:
			return 0, ErrTimeout
		}
	}
}

// Write implements Stream. The payload is chunked to the peripheral's MTU;
// one timeout budget covers all chunks.
func (b *Bridge) Write(p []byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	mtu := b.p.MTU()
	if mtu <= 0 {
		mtu = defaultMTU
	}

	for len(p) > 0 {
		n := len(p)
		if n > mtu {
			n = mtu
		}

		if b.mode == WriteWithoutResponse {
			if err := b.wait(b.readySig, timer); err != nil {
				return err
			}
		}
		if b.isClosed() {
			return ErrDisconnected
		}
		if err := b.p.WriteChunk(p[:n], b.mode); err != nil {
			// A chunk the radio stack refuses means the link is gone.
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		if b.mode == WriteWithResponse {
			if err := b.wait(b.ackSig, timer); err != nil {
				return err
			}
		}

		p = p[n:]
	}
	return nil
}

// Purge implements Stream, discarding buffered unread bytes. A stale data
// signal left behind is harmless: the read loop re-checks the buffer.
func (b *Bridge) Purge() {
	b.mu.Lock()
	b.buf = b.buf[:0]
	b.mu.Unlock()
}

// Close implements Stream. The first call marks the bridge closed, wakes
// every blocked Read/Write, and closes the peripheral; later calls are
// no-ops.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.buf = nil
		b.mu.Unlock()

		close(b.done)
		_ = b.p.Close()
	})
	return nil
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bridge) wait(sig chan struct{}, timer *time.Timer) error {
	select {
	case <-sig:
		return nil
	case <-b.done:
		return ErrDisconnected
	case <-b.cancel:
		return ErrCancelled
	case <-timer.C:
		return ErrTimeout
	}
}

// signal performs a non-blocking send; the size-1 buffer coalesces bursts.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
