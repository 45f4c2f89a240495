package transport

import (
	"errors"
	"time"
)

// Sentinel errors forming the transport taxonomy. Callers match with
// errors.Is; the decoder and session layers map them to their own domains.
var (
	// ErrTimeout means no data arrived (read) or the link did not accept
	// the payload (write) within the per-call timeout. Retryable.
	ErrTimeout = errors.New("transport: timeout")

	// ErrDisconnected means the link is closed, or closed while the call
	// was blocked. Terminal for the current session.
	ErrDisconnected = errors.New("transport: disconnected")

	// ErrCancelled means a bound cancellation signal fired while the call
	// was waiting. User-initiated; not a link failure.
	ErrCancelled = errors.New("transport: cancelled")
)

// Stream is the blocking byte-stream contract consumed by the log decoder.
// Bridge implements it over a radio Peripheral; Recorder decorates any
// Stream transparently.
type Stream interface {
	// Read blocks until at least one byte is available, then returns up to
	// len(p) bytes. Short reads are legal. Fails with ErrTimeout if no data
	// arrives within timeout, ErrDisconnected if the stream is closed or
	// closes while waiting.
	Read(p []byte, timeout time.Duration) (int, error)

	// Write blocks until the whole payload is accepted by the link or the
	// timeout elapses. Chunking to the link MTU is invisible to the caller.
	Write(p []byte, timeout time.Duration) error

	// Purge discards buffered unread bytes. Used after a protocol desync.
	Purge()

	// Close is idempotent, releases resources, and unblocks any goroutine
	// currently inside Read or Write, which then return ErrDisconnected.
	Close() error
}

// WriteMode selects the link-layer delivery semantics for outbound chunks.
type WriteMode int

const (
	// WriteWithoutResponse is best-effort delivery; the bridge respects
	// backpressure by waiting for a flow-control credit before each chunk.
	WriteWithoutResponse WriteMode = iota

	// WriteWithResponse is confirmed delivery; the bridge waits for the
	// per-chunk acknowledgment after sending each chunk.
	WriteWithResponse
)

// Peripheral is the minimal surface the bridge needs from a radio stack.
// Implementations hand inbound traffic and link events to the bridge via
// OnData, OnWriteReady, OnAck, and OnDisconnect; those are the only
// radio-stack entry points into the engine.
type Peripheral interface {
	// MTU returns the negotiated maximum payload per outbound chunk.
	MTU() int

	// WriteChunk hands one chunk (len <= MTU) to the radio stack. It must
	// not block on radio round-trips; completion is reported through the
	// bridge callbacks.
	WriteChunk(p []byte, mode WriteMode) error

	// Close tears down the link. Idempotency is the bridge's concern.
	Close() error
}
