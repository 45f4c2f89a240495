package session

import (
	"fmt"

	"github.com/tideworn/logbook/internal/dive"
)

// Phase enumerates the session states.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseConnecting
	PhasePaired
	PhaseImporting
	PhaseCompleted
	PhaseError
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseConnecting:
		return "connecting"
	case PhasePaired:
		return "paired"
	case PhaseImporting:
		return "importing"
	case PhaseCompleted:
		return "completed"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the final outcome surfaced to the caller.
type Result struct {
	NewDives     int
	SkippedDives int
	DeviceName   string
}

// State is the session's tagged union: Phase selects which payload fields
// are meaningful. Values are immutable snapshots; Transition returns a new
// State rather than mutating.
type State struct {
	Phase Phase

	// Target is the selected peripheral address (Connecting).
	Target string

	// Device and DeviceName identify the paired computer
	// (Paired, Importing, Completed).
	Device     dive.DeviceID
	DeviceName string

	// Saved and Skipped are the running tally (Importing).
	Saved   int
	Skipped int

	// Result holds the final outcome (Completed).
	Result *Result

	// Err holds the failure (Error).
	Err error
}

// Status renders a one-line user-facing description of the snapshot.
func (s State) Status() string {
	switch s.Phase {
	case PhaseConnecting:
		return fmt.Sprintf("connecting to %s", s.Target)
	case PhasePaired:
		return fmt.Sprintf("paired with %s", s.DeviceName)
	case PhaseImporting:
		return fmt.Sprintf("importing from %s: %d saved, %d skipped", s.DeviceName, s.Saved, s.Skipped)
	case PhaseCompleted:
		return fmt.Sprintf("completed: %d new, %d skipped", s.Result.NewDives, s.Result.SkippedDives)
	case PhaseError:
		return fmt.Sprintf("error: %v", s.Err)
	default:
		return s.Phase.String()
	}
}

// EventKind enumerates the external events driving the machine.
type EventKind int

const (
	EventRadioOn EventKind = iota
	EventRadioOff
	EventDeviceSelected
	EventTransportReady
	EventImportStarted
	EventDiveSaved
	EventDiveSkipped
	EventImportFinished
	EventCancelled
	EventFailed
)

// Event carries one external stimulus and its payload.
type Event struct {
	Kind       EventKind
	Target     string        // DeviceSelected
	Device     dive.DeviceID // TransportReady
	DeviceName string        // TransportReady
	Result     *Result       // ImportFinished
	Err        error         // Failed
}

// Transition is the pure state function. Events that do not apply to the
// current phase leave the state unchanged; Failed reaches Error from any
// non-terminal phase, except that a failure mid-import with dives already
// saved completes with partial results instead of discarding them.
func Transition(s State, e Event) State {
	if e.Kind == EventFailed {
		return fail(s, e.Err)
	}

	switch s.Phase {
	case PhaseIdle:
		if e.Kind == EventRadioOn {
			return State{Phase: PhaseScanning}
		}
	case PhaseScanning:
		switch e.Kind {
		case EventRadioOff:
			return State{Phase: PhaseIdle}
		case EventDeviceSelected:
			return State{Phase: PhaseConnecting, Target: e.Target}
		}
	case PhaseConnecting:
		if e.Kind == EventTransportReady {
			return State{Phase: PhasePaired, Device: e.Device, DeviceName: e.DeviceName}
		}
	case PhasePaired:
		if e.Kind == EventImportStarted {
			return State{Phase: PhaseImporting, Device: s.Device, DeviceName: s.DeviceName}
		}
	case PhaseImporting:
		switch e.Kind {
		case EventDiveSaved:
			next := s
			next.Saved++
			return next
		case EventDiveSkipped:
			next := s
			next.Skipped++
			return next
		case EventImportFinished:
			return State{Phase: PhaseCompleted, Device: s.Device, DeviceName: s.DeviceName, Result: e.Result}
		case EventCancelled:
			// Cancel preserves everything saved so far. With nothing saved
			// the session simply returns to Paired.
			if s.Saved > 0 {
				return State{
					Phase:      PhaseCompleted,
					Device:     s.Device,
					DeviceName: s.DeviceName,
					Result:     &Result{NewDives: s.Saved, SkippedDives: s.Skipped, DeviceName: s.DeviceName},
				}
			}
			return State{Phase: PhasePaired, Device: s.Device, DeviceName: s.DeviceName}
		}
	}
	return s
}

func fail(s State, err error) State {
	switch s.Phase {
	case PhaseCompleted, PhaseError:
		return s
	case PhaseImporting:
		if s.Saved > 0 {
			return State{
				Phase:      PhaseCompleted,
				Device:     s.Device,
				DeviceName: s.DeviceName,
				Result:     &Result{NewDives: s.Saved, SkippedDives: s.Skipped, DeviceName: s.DeviceName},
			}
		}
	}
	return State{Phase: PhaseError, Err: err}
}
