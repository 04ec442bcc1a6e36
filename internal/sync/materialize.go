package sync

import (
	"errors"
	"time"

	"github.com/macjediwizard/outlooksync/internal/event"
	"github.com/macjediwizard/outlooksync/internal/outlook"
	"github.com/macjediwizard/outlooksync/internal/recurrence"
)

// Materialize turns raw appointments into the desired destination state:
// recurrence expansion, normalization, per-day chunking, deduplication and
// UID assignment. Series are expanded inside the inflated expansion window;
// the result is then clipped to the sync window.
func (e *Engine) Materialize(appts []outlook.Appointment, syncW, expandW outlook.Window) map[string]event.Event {
	desired := make(map[string]event.Event)
	dedup := event.NewDedup()

	for _, appt := range appts {
		if appt.Cancelled {
			e.log.Debug("skipping cancelled appointment",
				"global_id", appt.GlobalID, "subject", appt.Subject)
			continue
		}

		for _, raw := range e.expand(appt, expandW) {
			evs, err := e.norm.Normalize(raw)
			if err != nil {
				// Already logged by the normalizer with the reason.
				continue
			}
			for _, ev := range evs {
				if !overlapsWindow(ev, syncW) {
					continue
				}
				if dedup.Seen(ev) {
					e.log.Warn("dropping duplicate event",
						"global_id", ev.GlobalID,
						"start_utc", ev.StartUTC, "end_utc", ev.EndUTC)
					continue
				}
				desired[e.uids.Build(ev.GlobalID, ev.Marker())] = ev
			}
		}
	}
	return desired
}

func (e *Engine) expand(appt outlook.Appointment, w outlook.Window) []event.Raw {
	master := event.Raw{
		Subject:    appt.Subject,
		Body:       appt.Body,
		Location:   appt.Location,
		GlobalID:   appt.GlobalID,
		StartLocal: appt.StartLocal,
		EndLocal:   appt.EndLocal,
		StartUTC:   appt.StartUTC,
		EndUTC:     appt.EndUTC,
		AllDay:     appt.AllDay,
	}

	if appt.Series == nil {
		return []event.Raw{master}
	}

	raws, err := recurrence.Expand(master, *appt.Series, w.From, w.To, e.zones, e.log)
	if err != nil {
		if errors.Is(err, recurrence.ErrUnsupportedFrequency) {
			e.log.Warn("skipping series with unsupported frequency",
				"global_id", appt.GlobalID, "subject", appt.Subject)
			return nil
		}
		e.log.Warn("recurrence expansion failed",
			"global_id", appt.GlobalID, "error", err)
		return nil
	}
	return raws
}

func overlapsWindow(ev event.Event, w outlook.Window) bool {
	return ev.EndUTC.After(w.From) && ev.StartUTC.Before(w.To)
}

// Windows computes the sync and expansion windows for a cycle starting at
// now.
func Windows(now time.Time, daysPast, daysFuture, expandPast, expandFuture int) (syncW, expandW outlook.Window) {
	now = now.UTC()
	syncW = outlook.Window{
		From: now.AddDate(0, 0, -daysPast),
		To:   now.AddDate(0, 0, daysFuture),
	}
	expandW = outlook.Window{
		From: syncW.From.AddDate(0, 0, -expandPast),
		To:   syncW.To.AddDate(0, 0, expandFuture),
	}
	return syncW, expandW
}
