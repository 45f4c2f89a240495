// Package testutil holds small deterministic helpers shared across test
// packages.
package testutil

import (
	"sync"
	"time"
)

// Timeline hands out deterministic dive start times: a fixed base advanced
// by a fixed step per call. Tests that compare clustering windows or sync
// anchors need starts that never drift between runs.
type Timeline struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	n    int
}

// NewTimeline starts at base and advances by step per Next call.
func NewTimeline(base time.Time, step time.Duration) *Timeline {
	return &Timeline{base: base, step: step}
}

// Next returns the next start time in the sequence.
func (t *Timeline) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := t.base.Add(time.Duration(t.n) * t.step)
	t.n++
	return ts
}

// Reset rewinds the sequence to the base time.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n = 0
}
