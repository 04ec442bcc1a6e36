// Package outlook attaches to the local Outlook automation surface and
// fetches raw appointments. Every automation call runs on a dedicated
// OS thread initialised as a single-threaded apartment; the rest of the
// process talks to the bridge through FetchAppointments only.
package outlook

import (
	"context"
	"errors"
	"time"

	"github.com/macjediwizard/outlooksync/internal/recurrence"
)

// ErrHostUnavailable means the automation host could not be attached after
// all retries. The caller must treat the cycle as "no data", not as an empty
// calendar, so the reconciler does not reap the whole managed set.
var ErrHostUnavailable = errors.New("automation host unavailable")

// Window bounds a fetch in absolute time.
type Window struct {
	From time.Time
	To   time.Time
}

// Appointment is one raw source item. For a series master, Series is
// non-nil and the expander enumerates its occurrences; the master's own
// times then only serve as a duration fallback.
type Appointment struct {
	Subject  string
	Body     string
	Location string
	GlobalID string

	StartLocal time.Time
	EndLocal   time.Time
	StartUTC   time.Time
	EndUTC     time.Time

	AllDay    bool
	Cancelled bool

	Series *recurrence.Series
}

// Bridge yields the source appointments for a window.
type Bridge interface {
	// FetchAppointments returns the finite appointment set overlapping the
	// window. The context bounds the whole fetch including host attach.
	FetchAppointments(ctx context.Context, w Window) ([]Appointment, error)
	// Close releases the bridge's worker thread.
	Close()
}
