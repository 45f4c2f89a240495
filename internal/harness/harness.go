package harness

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tideworn/logbook/internal/dive"
	"github.com/tideworn/logbook/internal/session"
	"github.com/tideworn/logbook/internal/sim"
	"github.com/tideworn/logbook/internal/store"
)

// TraceEvent is one recorded session state transition.
type TraceEvent struct {
	Step    int    `json:"step"`
	Phase   string `json:"phase"`
	Saved   int    `json:"saved,omitempty"`
	Skipped int    `json:"skipped,omitempty"`

	// Final tallies, present on completed events.
	ResultNew     int `json:"result_new,omitempty"`
	ResultSkipped int `json:"result_skipped,omitempty"`

	Err string `json:"err,omitempty"`
}

// StepResult is the outcome of one import run.
type StepResult struct {
	Target    string `json:"target"`
	New       int    `json:"new"`
	Skipped   int    `json:"skipped"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Err       string `json:"err,omitempty"`
}

// Result is the outcome of a full scenario run.
type Result struct {
	Scenario string       `json:"scenario"`
	Steps    []StepResult `json:"steps"`
	Events   []TraceEvent `json:"events"`
	Dives    int          `json:"dives"`

	// Failures lists inline-expectation mismatches; empty means pass.
	// Not part of the golden snapshot.
	Failures []string `json:"-"`
}

// seqGenerator hands out sequential dive ids for reproducible traces.
type seqGenerator struct {
	n int
}

func (g *seqGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("dive-%04d", g.n)
}

// Run executes every import step of the scenario against one fresh
// in-memory database and returns the recorded outcome.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	defer st.Close()

	radio := sim.NewRadio()
	for _, d := range scenario.Devices {
		dev := sim.NewDevice(dive.DeviceID(d.ID), d.Name)
		if d.MTU > 0 {
			dev.SetMTU(d.MTU)
		}
		for _, sd := range d.Dives {
			dev.AddDive(toDive(dive.DeviceID(d.ID), d.Name, sd))
		}
		for _, idx := range d.Corrupt {
			dev.CorruptDive(idx)
		}
		radio.Register(d.Name, dev)
		radio.Register(d.ID, dev)
	}

	result := &Result{
		Scenario: scenario.Name,
		Steps:    make([]StepResult, 0, len(scenario.Imports)),
		Events:   make([]TraceEvent, 0, 64),
	}
	ids := &seqGenerator{}
	ctx := context.Background()

	for i, step := range scenario.Imports {
		var sess *session.Session
		opts := []session.Option{
			session.WithIDGenerator(ids),
			session.WithObserver(func(st session.State) {
				result.Events = append(result.Events, eventFrom(i, st))
			}),
		}
		cancelRequested := false
		if step.CancelAfter > 0 {
			after := step.CancelAfter
			opts = append(opts, session.WithProgress(func(p session.Progress) {
				if p.Saved+p.Skipped >= after {
					cancelRequested = true
					sess.Cancel()
				}
			}))
		}
		sess = session.New(st, radio, opts...)

		res, err := sess.Import(ctx, step.Target)
		sr := StepResult{Target: step.Target}
		switch {
		case err != nil:
			sr.Err = err.Error()
		case res == nil:
			sr.Cancelled = true
		default:
			sr.New = res.NewDives
			sr.Skipped = res.SkippedDives
			sr.Cancelled = cancelRequested
		}
		result.Steps = append(result.Steps, sr)
	}

	count, err := st.CountDives(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting dives: %w", err)
	}
	result.Dives = count
	result.Failures = check(scenario, result)
	return result, nil
}

func eventFrom(step int, st session.State) TraceEvent {
	e := TraceEvent{
		Step:    step,
		Phase:   st.Phase.String(),
		Saved:   st.Saved,
		Skipped: st.Skipped,
	}
	if st.Result != nil {
		e.ResultNew = st.Result.NewDives
		e.ResultSkipped = st.Result.SkippedDives
	}
	if st.Err != nil {
		e.Err = st.Err.Error()
	}
	return e
}

func toDive(device dive.DeviceID, deviceName string, sd Dive) *dive.Dive {
	fp, _ := hex.DecodeString(sd.Fingerprint)
	interval := sd.Interval
	if interval <= 0 {
		interval = 10
	}

	d := &dive.Dive{
		Device:      device,
		DeviceName:  deviceName,
		Start:       sd.Start,
		MaxDepth:    sd.MaxDepth,
		Fingerprint: fp,
	}
	for i, s := range sd.Samples {
		d.Samples = append(d.Samples, dive.Sample{
			Offset:      i * interval,
			Depth:       s.Depth,
			Temperature: s.Temp,
		})
	}
	d.End = sd.Start.Add(time.Duration(len(sd.Samples)*interval) * time.Second)
	d.BottomTime = d.End.Sub(d.Start)
	return d
}

func check(scenario *Scenario, result *Result) []string {
	if scenario.Expect == nil {
		return nil
	}
	var failures []string
	if result.Dives != scenario.Expect.Dives {
		failures = append(failures, fmt.Sprintf("dives: got %d, want %d", result.Dives, scenario.Expect.Dives))
	}
	for i, want := range scenario.Expect.Steps {
		if i >= len(result.Steps) {
			failures = append(failures, fmt.Sprintf("step %d: missing", i))
			continue
		}
		got := result.Steps[i]
		if want.Failed != (got.Err != "") {
			failures = append(failures, fmt.Sprintf("step %d: failed=%v, want %v (err %q)", i, got.Err != "", want.Failed, got.Err))
			continue
		}
		if got.New != want.New || got.Skipped != want.Skipped {
			failures = append(failures,
				fmt.Sprintf("step %d: got %d new / %d skipped, want %d / %d", i, got.New, got.Skipped, want.New, want.Skipped))
		}
	}
	return failures
}
