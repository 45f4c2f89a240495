// Package transport bridges an asynchronous, notification-driven radio link
// into the blocking byte-stream interface the log decoder consumes.
//
// ARCHITECTURE:
//
// The radio stack delivers inbound bytes via callbacks on its own threads.
// Bridge owns a byte queue guarded by one mutex plus a coalescing signal
// channel; callbacks append and signal, the blocked reader wakes and
// re-checks the queue in a loop. The re-check loop is load-bearing: several
// notifications may coalesce into one wake, and a wake may be stale relative
// to data already drained by a previous read.
//
// Outbound writes are chunked to the link's negotiated MTU. In unacknowledged
// mode the bridge waits for a flow-control credit before each chunk; in
// acknowledged mode it waits for the per-chunk ack after each chunk. One
// timeout budget covers the whole payload either way.
//
// All blocking happens on the caller's goroutine, which by session contract
// is the dedicated import worker, never a UI-facing context.
//
// Recorder decorates any Stream with a timestamped operation trace for
// post-mortem diagnostics.
package transport
