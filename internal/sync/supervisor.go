package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/macjediwizard/outlooksync/internal/activity"
	"github.com/macjediwizard/outlooksync/internal/caldav"
	"github.com/macjediwizard/outlooksync/internal/config"
	"github.com/macjediwizard/outlooksync/internal/logging"
	"github.com/macjediwizard/outlooksync/internal/outlook"
	"github.com/macjediwizard/outlooksync/internal/tray"
)

// ErrFetchTimedOut marks a source fetch that exceeded its deadline; the
// cycle aborts, the loop continues.
var ErrFetchTimedOut = errors.New("source fetch timed out")

// fetchTimeout is the hard deadline for one source fetch including attach.
const fetchTimeout = 2 * time.Minute

// Supervisor owns the periodic loop: one cycle at a time under the
// operation lock, each in its own cancellation scope merged with the
// service scope.
type Supervisor struct {
	cfg     *config.Config
	bridge  outlook.Bridge
	engine  *Engine
	status  tray.Status
	events  logging.EventSink
	tracker *activity.Tracker
	log     *slog.Logger

	// mu is the operation lock; held for the duration of a cycle.
	mu stdsync.Mutex

	scopeMu     stdsync.Mutex
	serviceCtx  context.Context
	cancelCycle context.CancelFunc

	// firstWipeDone is process-wide on purpose: a restart re-triggers the
	// filtered wipe.
	firstWipeDone bool
}

func NewSupervisor(cfg *config.Config, bridge outlook.Bridge, engine *Engine,
	status tray.Status, events logging.EventSink, tracker *activity.Tracker,
	log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if status == nil {
		status = tray.NewLogStatus(log)
	}
	if events == nil {
		events = logging.LogSink{Log: log}
	}
	if tracker == nil {
		tracker = activity.NewTracker()
	}
	return &Supervisor{
		cfg:     cfg,
		bridge:  bridge,
		engine:  engine,
		status:  status,
		events:  events,
		tracker: tracker,
		log:     log,
	}
}

// Run executes the periodic loop until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.scopeMu.Lock()
	s.serviceCtx = ctx
	s.scopeMu.Unlock()

	initialWait := time.Duration(s.cfg.InitialWaitSeconds) * time.Second
	interval := time.Duration(s.cfg.SyncIntervalMinutes) * time.Minute

	s.log.Info("supervisor starting",
		"initial_wait", initialWait, "interval", interval)
	if err := sleepCtx(ctx, initialWait); err != nil {
		return err
	}

	for {
		cycleCtx, cancel := context.WithCancel(ctx)
		s.setCancel(cancel)
		s.runLocked(cycleCtx, false)
		cancel()

		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}

// TriggerFullResync cancels any in-flight cycle, waits its turn on the
// operation lock and runs an unfiltered wipe followed by a normal cycle.
// Safe to call from the UI goroutine; a no-op before Run has started.
func (s *Supervisor) TriggerFullResync() {
	s.scopeMu.Lock()
	svc := s.serviceCtx
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
	s.scopeMu.Unlock()
	if svc == nil || svc.Err() != nil {
		return
	}

	s.log.Info("manual full re-sync requested")
	cycleCtx, cancel := context.WithCancel(svc)
	s.setCancel(cancel)
	defer cancel()
	s.runLocked(cycleCtx, true)
}

func (s *Supervisor) setCancel(cancel context.CancelFunc) {
	s.scopeMu.Lock()
	s.cancelCycle = cancel
	s.scopeMu.Unlock()
}

// runLocked executes one cycle under the operation lock. Errors end the
// cycle, never the loop.
func (s *Supervisor) runLocked(ctx context.Context, fullResync bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.With("cycle", uuid.NewString()[:8])
	s.tracker.StartCycle()

	err := s.cycle(ctx, log, fullResync)

	counters, _ := s.tracker.Current()
	done := s.tracker.FinishCycle(summaryMessage(counters))
	s.status.SetIdle()

	switch {
	case err == nil:
		log.Info("cycle complete", "duration", done.Duration(), "summary", done.Message)
	case errors.Is(err, context.Canceled):
		if s.serviceStopping() {
			log.Info("cycle cancelled by service stop")
		} else {
			log.Info("cycle superseded by manual re-sync")
		}
	case errors.Is(err, caldav.ErrAuthFailed):
		log.Error("cycle aborted on authentication failure", "error", err)
		s.events.AuthFailure(err.Error())
		s.status.UpdateText(tray.Clamp("authentication failed, check credentials"))
	case errors.Is(err, ErrFetchTimedOut):
		log.Error("cycle aborted, source fetch timed out")
	default:
		log.Error("cycle failed", "error", err)
	}
}

func (s *Supervisor) cycle(ctx context.Context, log *slog.Logger, fullResync bool) error {
	s.status.SetUpdating()

	switch {
	case fullResync:
		if err := s.engine.Wipe(ctx, false); err != nil {
			return err
		}
		s.firstWipeDone = true
	case !s.firstWipeDone:
		// First cycle after process start: reap everything this instance
		// previously wrote before converging fresh.
		log.Info("first cycle, wiping managed destination entries")
		if err := s.engine.Wipe(ctx, true); err != nil {
			return err
		}
		s.firstWipeDone = true
	}

	syncW, expandW := Windows(time.Now(),
		s.cfg.SyncDaysIntoPast, s.cfg.SyncDaysIntoFuture,
		s.cfg.RecurrenceExpansionDaysPast, s.cfg.RecurrenceExpansionDaysFuture)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	appts, err := s.bridge.FetchAppointments(fetchCtx, expandW)
	cancel()
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, outlook.ErrHostUnavailable):
			// No data is not an empty calendar: reconciling now would reap
			// every managed entry. Skip the cycle and try again later.
			log.Warn("source host unavailable, skipping cycle", "error", err)
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			return ErrFetchTimedOut
		default:
			return err
		}
	}
	s.tracker.Record(func(c *activity.Cycle) { c.Fetched = len(appts) })

	desired := s.engine.Materialize(appts, syncW, expandW)
	s.tracker.Record(func(c *activity.Cycle) { c.Desired = len(desired) })
	log.Info("materialized desired set", "appointments", len(appts), "events", len(desired))

	current, err := s.engine.client.Enumerate(ctx, s.engine.Managed)
	if err != nil {
		if errors.Is(err, caldav.ErrAuthFailed) || ctx.Err() != nil {
			return err
		}
		// A bad enumeration must not block the upserts; proceed as if the
		// destination were empty. Nothing is reaped in that case.
		log.Warn("destination enumeration failed, proceeding with empty snapshot", "error", err)
		if errors.Is(err, caldav.ErrInvalidResponse) {
			s.events.ParseFailure(err.Error())
		}
		current = map[string]string{}
	}

	return s.engine.Reconcile(ctx, desired, current)
}

func (s *Supervisor) serviceStopping() bool {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	return s.serviceCtx != nil && s.serviceCtx.Err() != nil
}
