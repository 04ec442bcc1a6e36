package event

import (
	"errors"
	"log/slog"
	"time"

	"github.com/macjediwizard/outlooksync/internal/timezone"
)

// ErrNoTimestamps marks an appointment that carries neither local nor UTC
// times and cannot be synced.
var ErrNoTimestamps = errors.New("appointment has no usable timestamps")

// ErrNonPositiveSpan marks an appointment whose end does not lie after its
// start even after repair.
var ErrNonPositiveSpan = errors.New("appointment span is not positive")

// Raw is an appointment as delivered by the source bridge, before any time
// repair or chunking. Zero time values mean "absent".
type Raw struct {
	Subject  string
	Body     string
	Location string
	GlobalID string

	StartLocal time.Time
	EndLocal   time.Time
	StartUTC   time.Time
	EndUTC     time.Time

	// AllDay is the source's own flag; the normalizer may also infer
	// all-day from the midnight-span heuristic.
	AllDay bool
}

// Normalizer consolidates raw appointments into atomic events.
type Normalizer struct {
	zones *timezone.Resolver
	log   *slog.Logger
}

func NewNormalizer(zones *timezone.Resolver, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{zones: zones, log: log}
}

// Normalize repairs the raw appointment's timestamps, infers the all-day
// flag and splits multi-day all-day spans into per-day events. The returned
// slice is empty only when an error is returned.
func (n *Normalizer) Normalize(raw Raw) ([]Event, error) {
	startLocal, startUTC, err := n.reconcile(raw.StartLocal, raw.StartUTC, raw.GlobalID, "start")
	if err != nil {
		return nil, err
	}
	endLocal, endUTC, err := n.reconcile(raw.EndLocal, raw.EndUTC, raw.GlobalID, "end")
	if err != nil {
		return nil, err
	}

	if !endUTC.After(startUTC) {
		n.log.Warn("dropping appointment with non-positive span",
			"global_id", raw.GlobalID, "subject", raw.Subject,
			"start_utc", startUTC, "end_utc", endUTC)
		return nil, ErrNonPositiveSpan
	}

	n.checkTargetAlignment(startLocal, startUTC, raw.GlobalID)

	ev := Event{
		Subject:    raw.Subject,
		Body:       raw.Body,
		Location:   raw.Location,
		GlobalID:   raw.GlobalID,
		StartLocal: startLocal,
		EndLocal:   endLocal,
		StartUTC:   startUTC,
		EndUTC:     endUTC,
		AllDay:     raw.AllDay || InferAllDay(startLocal, endLocal),
	}

	if ev.AllDay {
		return n.chunkDays(ev), nil
	}
	return []Event{ev}, nil
}

// reconcile derives the missing half of a local/UTC pair and repairs
// inconsistent pairs in favour of the UTC-derived wall clock.
func (n *Normalizer) reconcile(local, utc time.Time, globalID, which string) (time.Time, time.Time, error) {
	switch {
	case local.IsZero() && utc.IsZero():
		n.log.Warn("appointment has neither local nor UTC time",
			"global_id", globalID, "field", which)
		return time.Time{}, time.Time{}, ErrNoTimestamps
	case utc.IsZero():
		return local, n.zones.ToUTC(local), nil
	case local.IsZero():
		return n.zones.FromUTC(utc), utc.UTC(), nil
	}

	derived := n.zones.FromUTC(utc)
	// Compare wall clocks: local may have been constructed in an arbitrary
	// location by the bridge.
	asSource := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), 0, n.zones.Source)
	if !n.zones.WithinTolerance(asSource, derived) {
		n.log.Warn("local/UTC timestamp mismatch, using UTC-derived value",
			"global_id", globalID, "field", which,
			"local", local.Format(time.RFC3339), "derived", derived.Format(time.RFC3339))
		return derived, utc.UTC(), nil
	}
	return asSource, utc.UTC(), nil
}

// checkTargetAlignment logs when source and target share a zone but the
// target-local rendering drifts from the source wall clock.
func (n *Normalizer) checkTargetAlignment(local, utc time.Time, globalID string) {
	if !n.zones.SameZone() {
		return
	}
	target := n.zones.TargetFromUTC(utc)
	if !timezone.SameWallClock(local, target) {
		n.log.Warn("target zone rendering differs from source wall clock",
			"global_id", globalID,
			"source_local", local.Format(time.RFC3339),
			"target_local", target.Format(time.RFC3339))
	}
}

// InferAllDay applies the midnight-span heuristic: some sources expose
// all-day items as plain midnight-to-midnight intervals without setting the
// flag.
func InferAllDay(startLocal, endLocal time.Time) bool {
	if startLocal.Hour() != 0 || startLocal.Minute() != 0 || startLocal.Second() != 0 {
		return false
	}
	if endLocal.Sub(startLocal) < 23*time.Hour {
		return false
	}
	endMidnight := endLocal.Hour() == 0 && endLocal.Minute() == 0 && endLocal.Second() == 0
	endLate := endLocal.Hour() == 23 && endLocal.Minute() >= 59
	return endMidnight || endLate
}

// chunkDays splits a (possibly multi-day) all-day event into one event per
// covered day so every day gets its own UID and destination entry.
func (n *Normalizer) chunkDays(ev Event) []Event {
	startDay := startOfDay(ev.StartLocal)
	endDay := startOfDay(ev.EndLocal)
	// An end at exactly midnight is exclusive; anything later covers the
	// end day too.
	if ev.EndLocal.After(endDay) {
		endDay = endDay.AddDate(0, 0, 1)
	}
	if !endDay.After(startDay) {
		endDay = startDay.AddDate(0, 0, 1)
	}

	var out []Event
	for day := startDay; day.Before(endDay); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		chunk := ev
		chunk.StartLocal = day
		chunk.EndLocal = next
		chunk.StartUTC = n.zones.ToUTC(day)
		chunk.EndUTC = n.zones.ToUTC(next)
		chunk.AllDay = true
		out = append(out, chunk)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
