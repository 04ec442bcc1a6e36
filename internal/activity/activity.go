// Package activity tracks the state of the current sync cycle and keeps a
// short history of completed cycles for the status surface and the log.
package activity

import (
	"fmt"
	"sync"
	"time"
)

const maxRecentCycles = 20

// Phase names match the tray states.
const (
	PhaseIdle     = "idle"
	PhaseUpdating = "updating"
	PhaseDeleting = "deleting"
)

// Cycle is one sync cycle's accounting.
type Cycle struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Phase       string

	Fetched   int
	Desired   int
	Deleted   int
	Put       int
	Verified  int
	Corrected int
	Skipped   int
	Failed    int

	Message string
}

// Duration is the cycle's wall time so far, or its final duration once
// completed.
func (c Cycle) Duration() time.Duration {
	if c.CompletedAt.IsZero() {
		return time.Since(c.StartedAt).Round(time.Millisecond)
	}
	return c.CompletedAt.Sub(c.StartedAt).Round(time.Millisecond)
}

// Tracker records cycle progress. One cycle is active at a time; the
// supervisor's lock guarantees that, so the mutex here only guards readers
// on other goroutines (the tray surface).
type Tracker struct {
	mu      sync.RWMutex
	current *Cycle
	recent  []Cycle
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// StartCycle begins accounting for a new cycle.
func (t *Tracker) StartCycle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = &Cycle{StartedAt: time.Now(), Phase: PhaseUpdating}
}

// SetPhase records the reconciler's phase.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.Phase = phase
	}
}

// Progress formats "current/total (p%)" for the tray tooltip.
func Progress(current, total int) string {
	if total <= 0 {
		return "0/0 (0%)"
	}
	return fmt.Sprintf("%d/%d (%d%%)", current, total, current*100/total)
}

// Record applies a delta to the current cycle's counters.
func (t *Tracker) Record(fn func(*Cycle)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		fn(t.current)
	}
}

// FinishCycle completes the current cycle and moves it into the history.
func (t *Tracker) FinishCycle(message string) Cycle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Cycle{}
	}
	t.current.CompletedAt = time.Now()
	t.current.Phase = PhaseIdle
	t.current.Message = message

	done := *t.current
	t.recent = append([]Cycle{done}, t.recent...)
	if len(t.recent) > maxRecentCycles {
		t.recent = t.recent[:maxRecentCycles]
	}
	t.current = nil
	return done
}

// Current returns a copy of the in-flight cycle, if any.
func (t *Tracker) Current() (Cycle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return Cycle{}, false
	}
	return *t.current, true
}

// Recent returns the completed-cycle history, newest first.
func (t *Tracker) Recent() []Cycle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Cycle, len(t.recent))
	copy(out, t.recent)
	return out
}
