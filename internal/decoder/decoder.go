// Package decoder turns the blocking byte stream of a dive computer into
// decoded dives. The Decoder interface is the engine-facing contract; the
// frame decoder in this package speaks the simulated-device log protocol
// used by tests and the demo peripheral. Real computers plug in behind the
// same interface.
package decoder

import (
	"fmt"

	"github.com/tideworn/logbook/internal/dive"
)

// Decoder yields decoded dives one at a time, newest entry last.
// Next returns io.EOF after the final dive. A *ProtocolError means the
// in-progress dive is corrupt; when Recoverable, the caller may skip it
// and keep reading.
type Decoder interface {
	Next() (*dive.Dive, error)
}

// ProtocolError reports corruption in the device's log stream.
type ProtocolError struct {
	// Msg describes the corruption.
	Msg string

	// Recoverable is true when the frame boundary survived (e.g. a bad
	// checksum on a fully read frame) so the next dive can still be
	// decoded. False means framing is lost and the session must abort.
	Recoverable bool

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Msg, e.Err)
	}
	return "protocol: " + e.Msg
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
