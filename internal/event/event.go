// Package event holds the atomic calendar event model and the normalization
// pipeline that turns raw source appointments into consistent records.
package event

import (
	"time"
)

// Event is one atomic calendar entry after expansion and normalization.
// Multi-day all-day appointments are split into one Event per day before
// they reach the reconciler.
type Event struct {
	Subject  string
	Body     string
	Location string

	// GlobalID is the stable identifier of the originating appointment or
	// series; it is hashed into the managed UID.
	GlobalID string

	// StartLocal/EndLocal carry the source-zone wall clock; StartUTC/EndUTC
	// the absolute instants. The normalizer keeps the pairs consistent.
	StartLocal time.Time
	EndLocal   time.Time
	StartUTC   time.Time
	EndUTC     time.Time

	AllDay bool
}

// Marker returns the occurrence marker used as the UID suffix. Timed events
// use their UTC start; all-day events use the local start-of-day rendered as
// a UTC instant so the marker is independent of the source zone offset.
func (e Event) Marker() time.Time {
	if !e.AllDay {
		return e.StartUTC
	}
	y, m, d := e.StartLocal.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Duration returns the absolute span of the event.
func (e Event) Duration() time.Duration {
	return e.EndUTC.Sub(e.StartUTC)
}

// Signature identifies an event for deduplication.
type Signature struct {
	GlobalID string
	StartUTC time.Time
	EndUTC   time.Time
}

func (e Event) Signature() Signature {
	return Signature{GlobalID: e.GlobalID, StartUTC: e.StartUTC, EndUTC: e.EndUTC}
}

// Dedup tracks event signatures seen within one cycle.
type Dedup map[Signature]struct{}

func NewDedup() Dedup { return make(Dedup) }

// Seen records the event and reports whether its signature was already
// present.
func (d Dedup) Seen(e Event) bool {
	sig := e.Signature()
	if _, ok := d[sig]; ok {
		return true
	}
	d[sig] = struct{}{}
	return false
}
