// Package sync hosts the reconciliation engine and the periodic supervisor.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/macjediwizard/outlooksync/internal/activity"
	"github.com/macjediwizard/outlooksync/internal/caldav"
	"github.com/macjediwizard/outlooksync/internal/event"
	"github.com/macjediwizard/outlooksync/internal/ics"
	"github.com/macjediwizard/outlooksync/internal/timezone"
	"github.com/macjediwizard/outlooksync/internal/tray"
	"github.com/macjediwizard/outlooksync/internal/uid"
)

const (
	// deletePaceInterval spaces destructive wipe deletes so iCloud does not
	// throttle the burst.
	deletePaceInterval = 300 * time.Millisecond
	deleteBackoff      = 5 * time.Second
	// settleWait gives destination caches time to observe a wipe before the
	// following upserts.
	settleWait = 30 * time.Second

	// verifyTolerance bounds the start/end drift accepted on verify of
	// timed events.
	verifyTolerance = 2 * time.Minute
)

// Client is the destination surface the engine drives; satisfied by
// *caldav.Client.
type Client interface {
	Enumerate(ctx context.Context, managed func(string) bool) (map[string]string, error)
	Upsert(ctx context.Context, uid string, body []byte) error
	Fetch(ctx context.Context, uid string) ([]byte, error)
	Delete(ctx context.Context, uid string) error
}

// Engine reconciles the desired event set against the destination.
type Engine struct {
	client  Client
	uids    uid.Builder
	zones   *timezone.Resolver
	norm    *event.Normalizer
	icsOpts ics.Options
	status  tray.Status
	tracker *activity.Tracker
	log     *slog.Logger

	deletePace *rate.Limiter
	settleWait time.Duration
}

func NewEngine(client Client, uids uid.Builder, zones *timezone.Resolver,
	icsOpts ics.Options, status tray.Status, tracker *activity.Tracker,
	log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if status == nil {
		status = tray.NewLogStatus(log)
	}
	if tracker == nil {
		tracker = activity.NewTracker()
	}
	return &Engine{
		client:     client,
		uids:       uids,
		zones:      zones,
		norm:       event.NewNormalizer(zones, log),
		icsOpts:    icsOpts,
		status:     status,
		tracker:    tracker,
		log:        log,
		deletePace: rate.NewLimiter(rate.Every(deletePaceInterval), 1),
		settleWait: settleWait,
	}
}

// Managed reports whether a destination UID belongs to this instance.
func (e *Engine) Managed(u string) bool { return e.uids.Managed(u) }

// Reconcile drives one delete-then-upsert pass. Phase A reaps every managed
// destination entry absent from the desired set; Phase B upserts and
// verifies the desired set. Auth failures abort immediately.
func (e *Engine) Reconcile(ctx context.Context, desired map[string]event.Event, current map[string]string) error {
	if err := e.reapStale(ctx, desired, current); err != nil {
		return err
	}
	return e.upsertAll(ctx, desired)
}

func (e *Engine) reapStale(ctx context.Context, desired map[string]event.Event, current map[string]string) error {
	var stale []string
	for u := range current {
		if !e.uids.Managed(u) {
			continue
		}
		if _, keep := desired[u]; !keep {
			stale = append(stale, u)
		}
	}
	sort.Strings(stale)
	if len(stale) == 0 {
		return nil
	}

	e.status.SetDeleting()
	e.tracker.SetPhase(activity.PhaseDeleting)
	for i, u := range stale {
		e.status.UpdateText(tray.Clamp("deleting " + activity.Progress(i+1, len(stale))))
		if err := e.client.Delete(ctx, u); err != nil {
			if errors.Is(err, caldav.ErrAuthFailed) || ctx.Err() != nil {
				return err
			}
			e.log.Warn("stale delete failed", "uid", u, "error", err)
			e.tracker.Record(func(c *activity.Cycle) { c.Failed++ })
			continue
		}
		e.log.Debug("reaped stale event", "uid", u)
		e.tracker.Record(func(c *activity.Cycle) { c.Deleted++ })
	}
	return nil
}

func (e *Engine) upsertAll(ctx context.Context, desired map[string]event.Event) error {
	uids := make([]string, 0, len(desired))
	for u := range desired {
		uids = append(uids, u)
	}
	sort.Strings(uids)

	e.status.SetUpdating()
	e.tracker.SetPhase(activity.PhaseUpdating)
	for i, u := range uids {
		e.status.UpdateText(tray.Clamp("updating " + activity.Progress(i+1, len(uids))))
		if err := e.upsertOne(ctx, u, desired[u]); err != nil {
			if errors.Is(err, caldav.ErrAuthFailed) || ctx.Err() != nil {
				return err
			}
			e.log.Warn("upsert failed", "uid", u, "error", err)
			e.tracker.Record(func(c *activity.Cycle) { c.Failed++ })
		}
	}
	return nil
}

type verifyOutcome int

const (
	verifyMatch verifyOutcome = iota
	verifyMismatch
	verifySkipped
)

// upsertOne encodes, writes, reads back and compares one event, with a
// single corrective re-write on mismatch.
func (e *Engine) upsertOne(ctx context.Context, u string, ev event.Event) error {
	body, err := ics.Encode(ev, u, e.icsOpts)
	if err != nil {
		return err
	}
	if err := e.client.Upsert(ctx, u, []byte(body)); err != nil {
		return err
	}
	e.tracker.Record(func(c *activity.Cycle) { c.Put++ })

	res, err := e.verify(ctx, u, ev)
	if err != nil {
		return err
	}
	switch res {
	case verifyMatch:
		e.tracker.Record(func(c *activity.Cycle) { c.Verified++ })
		return nil
	case verifySkipped:
		e.tracker.Record(func(c *activity.Cycle) { c.Skipped++ })
		return nil
	}

	// One corrective re-write, then a single re-verify.
	e.log.Warn("verification mismatch, re-writing", "uid", u)
	if err := e.client.Upsert(ctx, u, []byte(body)); err != nil {
		return err
	}
	res, err = e.verify(ctx, u, ev)
	if err != nil {
		return err
	}
	switch res {
	case verifyMatch:
		e.tracker.Record(func(c *activity.Cycle) { c.Corrected++ })
	case verifySkipped:
		e.tracker.Record(func(c *activity.Cycle) { c.Skipped++ })
	default:
		e.log.Warn("verification still failing after corrective write", "uid", u)
		e.tracker.Record(func(c *activity.Cycle) { c.Failed++ })
	}
	return nil
}

// verify fetches the stored document and compares it against the desired
// event. Fetch and parse problems yield verifySkipped rather than a
// mismatch; re-writing the same bytes cannot fix those, and the event must
// not be counted as verified either.
func (e *Engine) verify(ctx context.Context, u string, ev event.Event) (verifyOutcome, error) {
	body, err := e.client.Fetch(ctx, u)
	if err != nil {
		if errors.Is(err, caldav.ErrAuthFailed) || ctx.Err() != nil {
			return verifySkipped, err
		}
		e.log.Warn("verify fetch failed, skipping verification", "uid", u, "error", err)
		return verifySkipped, nil
	}
	doc, err := ics.Decode(string(body))
	if err != nil {
		e.log.Warn("verify parse failed, skipping verification", "uid", u, "error", err)
		return verifySkipped, nil
	}
	if e.matches(u, ev, doc) {
		return verifyMatch, nil
	}
	return verifyMismatch, nil
}

func (e *Engine) matches(u string, ev event.Event, doc *ics.Document) bool {
	if doc.AllDay != ev.AllDay {
		e.log.Warn("all-day flag mismatch on verify",
			"uid", u, "desired", ev.AllDay, "observed", doc.AllDay)
		return false
	}
	if ev.AllDay {
		return sameDay(doc.Start, ev.StartLocal) && sameDay(doc.End, ev.EndLocal)
	}
	return within(doc.Start, ev.StartUTC, verifyTolerance) &&
		within(doc.End, ev.EndUTC, verifyTolerance)
}

// Wipe deletes destination entries, only managed ones when filtered and the
// whole collection on a manual full re-sync, then waits for destination
// caches to settle.
func (e *Engine) Wipe(ctx context.Context, filtered bool) error {
	e.status.SetDeleting()
	e.tracker.SetPhase(activity.PhaseDeleting)

	var filter func(string) bool
	if filtered {
		filter = e.uids.Managed
	}
	current, err := e.client.Enumerate(ctx, filter)
	if err != nil {
		if errors.Is(err, caldav.ErrAuthFailed) || ctx.Err() != nil {
			return err
		}
		e.log.Warn("wipe enumeration failed, nothing to delete", "error", err)
		return nil
	}

	uids := make([]string, 0, len(current))
	for u := range current {
		uids = append(uids, u)
	}
	sort.Strings(uids)
	e.log.Info("wiping destination entries", "count", len(uids), "filtered", filtered)

	for i, u := range uids {
		if err := e.deletePace.Wait(ctx); err != nil {
			return err
		}
		e.status.UpdateText(tray.Clamp("deleting " + activity.Progress(i+1, len(uids))))
		if err := e.client.Delete(ctx, u); err != nil {
			if errors.Is(err, caldav.ErrAuthFailed) || ctx.Err() != nil {
				return err
			}
			e.log.Warn("wipe delete failed, backing off", "uid", u, "error", err)
			if werr := sleepCtx(ctx, deleteBackoff); werr != nil {
				return werr
			}
			continue
		}
		e.tracker.Record(func(c *activity.Cycle) { c.Deleted++ })
	}

	if len(uids) > 0 {
		e.log.Info("waiting for destination to settle", "wait", e.settleWait)
		if err := sleepCtx(ctx, e.settleWait); err != nil {
			return err
		}
	}
	return nil
}

func within(a, b time.Time, tol time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// summaryMessage renders the cycle log line.
func summaryMessage(c activity.Cycle) string {
	return fmt.Sprintf("fetched=%d desired=%d deleted=%d put=%d verified=%d corrected=%d skipped=%d failed=%d",
		c.Fetched, c.Desired, c.Deleted, c.Put, c.Verified, c.Corrected, c.Skipped, c.Failed)
}
