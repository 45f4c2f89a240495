package transport

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// TraceEntry is one recorded stream operation.
type TraceEntry struct {
	At    time.Duration `json:"at"` // relative to recorder creation
	Op    string        `json:"op"` // "read" | "write" | "purge" | "close"
	Bytes int           `json:"bytes,omitempty"`
	Data  []byte        `json:"data,omitempty"`
	Err   string        `json:"err,omitempty"`
}

// Recorder is a transparent Stream decorator that appends every operation,
// success or failure, to an in-memory trace for post-mortem diagnostics.
//
// The trace is append-mostly on the I/O goroutine; Snapshot copies it out
// under the same mutex so another goroutine can render it while I/O is in
// flight. Payload bytes are retained for hex dumps on failure.
type Recorder struct {
	inner Stream
	start time.Time

	mu      sync.Mutex
	entries []TraceEntry
}

// NewRecorder wraps inner, timestamping entries relative to now.
func NewRecorder(inner Stream) *Recorder {
	return &Recorder{
		inner:   inner,
		start:   time.Now(),
		entries: make([]TraceEntry, 0, 128),
	}
}

// Read implements Stream.
func (r *Recorder) Read(p []byte, timeout time.Duration) (int, error) {
	n, err := r.inner.Read(p, timeout)
	e := TraceEntry{At: time.Since(r.start), Op: "read", Bytes: n}
	if n > 0 {
		e.Data = append([]byte(nil), p[:n]...)
	}
	if err != nil {
		e.Err = err.Error()
	}
	r.append(e)
	return n, err
}

// Write implements Stream.
func (r *Recorder) Write(p []byte, timeout time.Duration) error {
	err := r.inner.Write(p, timeout)
	e := TraceEntry{
		At:    time.Since(r.start),
		Op:    "write",
		Bytes: len(p),
		Data:  append([]byte(nil), p...),
	}
	if err != nil {
		e.Err = err.Error()
	}
	r.append(e)
	return err
}

// Purge implements Stream.
func (r *Recorder) Purge() {
	r.inner.Purge()
	r.append(TraceEntry{At: time.Since(r.start), Op: "purge"})
}

// Close implements Stream.
func (r *Recorder) Close() error {
	err := r.inner.Close()
	e := TraceEntry{At: time.Since(r.start), Op: "close"}
	if err != nil {
		e.Err = err.Error()
	}
	r.append(e)
	return err
}

// Snapshot returns a copy of the trace safe to read from any goroutine.
func (r *Recorder) Snapshot() []TraceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Recorder) append(e TraceEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// WriteHexDump renders a snapshot of the trace as a hex dump, one block per
// operation, suitable for attaching to a failure report.
func (r *Recorder) WriteHexDump(w io.Writer) error {
	return WriteHexDump(w, r.Snapshot())
}

// WriteHexDump renders recorded entries, live or previously saved, as a hex
// dump.
func WriteHexDump(w io.Writer, entries []TraceEntry) error {
	for _, e := range entries {
		header := fmt.Sprintf("[%12s] %-5s %d bytes", e.At.Round(time.Microsecond), e.Op, e.Bytes)
		if e.Err != "" {
			header += " error=" + e.Err
		}
		if _, err := fmt.Fprintln(w, header); err != nil {
			return err
		}
		if err := hexDump(w, e.Data); err != nil {
			return err
		}
	}
	return nil
}

func hexDump(w io.Writer, data []byte) error {
	const width = 16
	for off := 0; off < len(data); off += width {
		end := off + width
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]

		var hexCol strings.Builder
		var asciiCol strings.Builder
		for _, b := range line {
			fmt.Fprintf(&hexCol, "%02x ", b)
			if b >= 0x20 && b < 0x7f {
				asciiCol.WriteByte(b)
			} else {
				asciiCol.WriteByte('.')
			}
		}
		if _, err := fmt.Fprintf(w, "  %04x  %-48s %s\n", off, hexCol.String(), asciiCol.String()); err != nil {
			return err
		}
	}
	return nil
}
