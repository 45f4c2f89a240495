// Package session drives a live dive-computer transfer end to end.
//
// ARCHITECTURE:
//
// Single-Writer Import Loop:
// One goroutine per session performs all blocking transport I/O and decoder
// calls, mutates the session state, and owns the saved/skipped counters.
// This ensures:
// - No counter is ever updated from two contexts
// - UI-facing status is always derived from a snapshot
// - Simple reasoning about what survives a disconnect
//
// Import Flow:
// 1. Connect (bounded by a 15s transport-ready timeout)
// 2. Wrap the stream in a trace recorder for post-mortem diagnostics
// 3. Ask the decoder for dives newer than the device's last fingerprint
// 4. Per dive: trim surface padding, run dedup, persist, report progress
// 5. Map stream/decoder failures to session transitions
//
// Each dive is persisted as it arrives. A disconnect or cancel after N
// saved dives keeps those N dives; the session completes with partial
// results instead of discarding progress.
//
// Cancellation is cooperative: one flag, set once, polled by the loop at
// dive boundaries and observed by blocking transport waits.
//
// State is a tagged union and Transition is a pure function, so the
// machine is testable without any radio or database.
package session
