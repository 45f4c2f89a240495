package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tideworn/logbook/internal/decoder"
	"github.com/tideworn/logbook/internal/dedup"
	"github.com/tideworn/logbook/internal/dive"
	"github.com/tideworn/logbook/internal/ident"
	"github.com/tideworn/logbook/internal/store"
	"github.com/tideworn/logbook/internal/transport"
	"github.com/tideworn/logbook/internal/trim"
)

// DefaultConnectTimeout bounds a connection attempt: if the transport is
// not ready within it, the attempt fails and the partial connection is
// torn down.
const DefaultConnectTimeout = 15 * time.Second

var (
	// ErrConnectTimeout reports a connection attempt that never reached
	// transport-ready.
	ErrConnectTimeout = errors.New("session: connect timeout")

	// ErrImportInProgress reports a second Import on a session whose loop
	// is still running. At most one import loop runs per session.
	ErrImportInProgress = errors.New("session: import already in progress")
)

// Radio abstracts the radio stack's scan/connect/discover surface. Connect
// returns a bridged stream once service discovery completes, honoring ctx
// for timeout and teardown of partial connections. The session never
// touches radio-stack types beyond this interface.
type Radio interface {
	Connect(ctx context.Context, target string) (*transport.Bridge, dive.DeviceID, string, error)
}

// OpenDecoder builds a decoder over a ready stream, requesting only
// entries newer than since. The default speaks the frame protocol.
type OpenDecoder func(stream transport.Stream, device dive.DeviceID, name string, since dive.Fingerprint) (decoder.Decoder, error)

// Progress is the per-dive running tally surfaced to the caller.
type Progress struct {
	Saved   int
	Skipped int
}

// Session orchestrates one live transfer. Construct with New, run Import
// on a dedicated worker goroutine, observe via State/OnEvent snapshots
// from anywhere, cancel with Cancel.
type Session struct {
	store *store.Store
	index *dedup.Index
	radio Radio

	open           OpenDecoder
	ids            ident.Generator
	trimThreshold  float64
	connectTimeout time.Duration
	onEvent        func(State)
	onProgress     func(Progress)
	log            *slog.Logger

	running atomic.Bool

	cancelOnce sync.Once
	cancelCh   chan struct{}

	mu       sync.Mutex
	state    State
	recorder *transport.Recorder
}

// Option configures a session.
type Option func(*Session)

// WithConnectTimeout overrides the transport-ready timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) { s.connectTimeout = d }
}

// WithTrimThreshold overrides the surface-padding depth threshold,
// typically from a device profile.
func WithTrimThreshold(depth float64) Option {
	return func(s *Session) { s.trimThreshold = depth }
}

// WithIDGenerator overrides the dive id generator; tests use a fixed
// sequence.
func WithIDGenerator(g ident.Generator) Option {
	return func(s *Session) { s.ids = g }
}

// WithOpenDecoder overrides the decoder constructor.
func WithOpenDecoder(open OpenDecoder) Option {
	return func(s *Session) { s.open = open }
}

// WithObserver registers a callback invoked with a state snapshot after
// every transition. Called on the import goroutine; keep it fast.
func WithObserver(fn func(State)) Option {
	return func(s *Session) { s.onEvent = fn }
}

// WithProgress registers a per-dive tally callback.
func WithProgress(fn func(Progress)) Option {
	return func(s *Session) { s.onProgress = fn }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func defaultOpenDecoder(stream transport.Stream, device dive.DeviceID, name string, since dive.Fingerprint) (decoder.Decoder, error) {
	dec, err := decoder.Open(stream, device, name, since)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

// New creates a session over the store and radio.
func New(st *store.Store, radio Radio, opts ...Option) *Session {
	s := &Session{
		store:          st,
		index:          dedup.NewIndex(st),
		radio:          radio,
		open:           defaultOpenDecoder,
		ids:            ident.UUIDv7Generator{},
		trimThreshold:  trim.DefaultThreshold,
		connectTimeout: DefaultConnectTimeout,
		log:            slog.Default(),
		cancelCh:       make(chan struct{}),
		state:          State{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot safe to read from any goroutine.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel raises the cooperative cancellation flag. Idempotent. The import
// loop observes it at the next dive boundary and blocked transport waits
// observe it while waiting; dives already saved are preserved.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

func (s *Session) cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

// Trace returns the I/O trace of the most recent transfer, for failure
// diagnosis. Safe to call from any goroutine, including mid-import.
func (s *Session) Trace() []transport.TraceEntry {
	s.mu.Lock()
	rec := s.recorder
	s.mu.Unlock()
	if rec == nil {
		return nil
	}
	return rec.Snapshot()
}

// WriteTrace renders the I/O trace as a hex dump.
func (s *Session) WriteTrace(w io.Writer) error {
	s.mu.Lock()
	rec := s.recorder
	s.mu.Unlock()
	if rec == nil {
		return nil
	}
	return rec.WriteHexDump(w)
}

// Import runs the transfer end to end and blocks until it finishes. Call
// it on a dedicated worker goroutine.
//
// Returns (result, nil) on success, including partial success: a
// disconnect or cancel after N>0 saved dives completes with those N. A
// cancel before anything was saved returns (nil, nil) with the session
// back in Paired. (nil, err) means the session failed with nothing saved.
func (s *Session) Import(ctx context.Context, target string) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrImportInProgress
	}
	defer s.running.Store(false)

	s.apply(Event{Kind: EventRadioOn})
	s.apply(Event{Kind: EventDeviceSelected, Target: target})

	connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	bridge, device, name, err := s.radio.Connect(connectCtx, target)
	if err != nil {
		if errors.Is(connectCtx.Err(), context.DeadlineExceeded) {
			err = ErrConnectTimeout
		}
		s.apply(Event{Kind: EventFailed, Err: err})
		return nil, err
	}
	bridge.BindCancel(s.cancelCh)

	rec := transport.NewRecorder(bridge)
	s.mu.Lock()
	s.recorder = rec
	s.mu.Unlock()
	defer rec.Close()

	s.apply(Event{Kind: EventTransportReady, Device: device, DeviceName: name})

	if err := s.store.UpsertDevice(ctx, device, name); err != nil {
		s.log.Warn("failed to record device name", "device", device, "error", err)
	}
	since, err := s.store.LastFingerprint(ctx, device)
	if err != nil {
		s.log.Warn("failed to load sync anchor, requesting full log", "device", device, "error", err)
		since = nil
	}

	dec, err := s.open(rec, device, name, since)
	if err != nil {
		s.apply(Event{Kind: EventFailed, Err: err})
		return nil, err
	}

	s.apply(Event{Kind: EventImportStarted})
	return s.runLoop(ctx, dec, name)
}

// runLoop is the single-writer import loop: it alone mutates counters and
// state, and it alone touches the store during the session.
func (s *Session) runLoop(ctx context.Context, dec decoder.Decoder, deviceName string) (*Result, error) {
	saved, skipped := 0, 0

	finish := func() (*Result, error) {
		result := &Result{NewDives: saved, SkippedDives: skipped, DeviceName: deviceName}
		s.apply(Event{Kind: EventImportFinished, Result: result})
		return result, nil
	}
	cancelled := func() (*Result, error) {
		s.apply(Event{Kind: EventCancelled})
		if saved == 0 {
			return nil, nil
		}
		return &Result{NewDives: saved, SkippedDives: skipped, DeviceName: deviceName}, nil
	}

	for {
		// Dive boundary: the cancellation flag is checked here even if the
		// last blocking call returned normally.
		if s.cancelled() || ctx.Err() != nil {
			return cancelled()
		}

		d, err := dec.Next()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return finish()
		case errors.Is(err, transport.ErrCancelled):
			return cancelled()
		case decoder.IsRecoverable(err):
			s.log.Warn("skipping corrupt dive", "error", err)
			skipped++
			s.apply(Event{Kind: EventDiveSkipped})
			s.progress(saved, skipped)
			continue
		default:
			// Link loss or broken framing: the session ends here, keeping
			// everything already saved.
			s.log.Error("import aborted", "saved", saved, "skipped", skipped, "error", err)
			s.apply(Event{Kind: EventFailed, Err: err})
			if saved > 0 {
				return &Result{NewDives: saved, SkippedDives: skipped, DeviceName: deviceName}, nil
			}
			return nil, err
		}

		if s.importOne(ctx, d) {
			saved++
			s.apply(Event{Kind: EventDiveSaved})
		} else {
			skipped++
			s.apply(Event{Kind: EventDiveSkipped})
		}
		s.progress(saved, skipped)
	}
}

// importOne trims, deduplicates, and persists a single dive, reporting
// whether it was saved as new. Store failures are row-scoped: the dive is
// skipped and the loop continues.
func (s *Session) importOne(ctx context.Context, d *dive.Dive) bool {
	trim.Apply(d, s.trimThreshold)

	res, err := s.index.Check(ctx, d)
	if err != nil {
		s.log.Error("dedup check failed, skipping dive", "start", d.Start, "error", err)
		return false
	}
	if res.Duplicate {
		s.log.Debug("duplicate dive", "existing", res.DiveID, "start", d.Start)
		return false
	}

	id := s.ids.Generate()
	if err := s.store.SaveDive(ctx, store.NewDiveRecord(id, d), d.Samples, d.GasMixes); err != nil {
		s.log.Error("failed to save dive, skipping", "start", d.Start, "error", err)
		return false
	}
	if err := s.store.SaveSourceFingerprint(ctx, id, d.Device, d.Fingerprint); err != nil {
		// The dive row is durable; only the sync anchor is stale.
		s.log.Warn("failed to record fingerprint", "dive", id, "error", err)
	}
	return true
}

func (s *Session) apply(e Event) {
	s.mu.Lock()
	s.state = Transition(s.state, e)
	snapshot := s.state
	cb := s.onEvent
	s.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

func (s *Session) progress(saved, skipped int) {
	if s.onProgress != nil {
		s.onProgress(Progress{Saved: saved, Skipped: skipped})
	}
}

// Describe renders a user-facing failure line including how many dives
// survived the failed transfer.
func Describe(err error, result *Result) string {
	if err == nil {
		return ""
	}
	saved := 0
	if result != nil {
		saved = result.NewDives
	}
	return fmt.Sprintf("%v (%d dives saved before failure)", err, saved)
}
