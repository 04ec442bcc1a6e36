package outlook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// session is an attached calendar scope. close releases every native handle
// in reverse-acquisition order and never panics.
type session interface {
	appointments(w Window) ([]Appointment, error)
	close()
}

// automation is the low-level host surface the connector drives. The COM
// implementation lives behind the windows build tag; tests drive a fake.
type automation interface {
	hostRunning() bool
	startHost() error
	attach() (session, error)
	createInstance() (session, error)
}

const (
	defaultHostWait       = 30 * time.Second
	defaultProbeInterval  = time.Second
	defaultCreateRetries  = 3
	defaultCreateBackoff  = 5 * time.Second
	defaultAttachAttempts = 5
	defaultAttachWait     = 10 * time.Second
)

// connector owns the attach/retry state machine. All of its methods run on
// the worker thread; the context only serves cancellable waits.
type connector struct {
	auto automation
	log  *slog.Logger

	hostWait       time.Duration
	probeInterval  time.Duration
	createRetries  int
	createBackoff  time.Duration
	attachAttempts int
	attachWait     time.Duration
}

func newConnector(auto automation, log *slog.Logger) *connector {
	if log == nil {
		log = slog.Default()
	}
	return &connector{
		auto:           auto,
		log:            log,
		hostWait:       defaultHostWait,
		probeInterval:  defaultProbeInterval,
		createRetries:  defaultCreateRetries,
		createBackoff:  defaultCreateBackoff,
		attachAttempts: defaultAttachAttempts,
		attachWait:     defaultAttachWait,
	}
}

// fetch runs the call layer: repeat the attach sequence, then read the
// appointments through the scoped session.
func (c *connector) fetch(ctx context.Context, w Window) ([]Appointment, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attachAttempts; attempt++ {
		if attempt > 1 {
			c.log.Warn("attach failed, waiting before retry",
				"attempt", attempt-1, "error", lastErr)
			if err := wait(ctx, c.attachWait); err != nil {
				return nil, err
			}
		}

		sess, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		appts, err := sess.appointments(w)
		sess.close()
		if err != nil {
			lastErr = err
			continue
		}
		return appts, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrHostUnavailable, lastErr)
}

// connect performs one attach sequence: probe the host, launch it when
// absent, attach or create an automation instance, then probe once more.
func (c *connector) connect(ctx context.Context) (session, error) {
	if c.auto.hostRunning() {
		if sess, err := c.auto.attach(); err == nil {
			return sess, nil
		}
	} else {
		if err := c.auto.startHost(); err != nil {
			return nil, fmt.Errorf("starting host: %w", err)
		}
		if err := c.waitHostUp(ctx); err != nil {
			return nil, err
		}
		if sess, err := c.auto.attach(); err == nil {
			return sess, nil
		}
	}

	sess, err := c.createInstance(ctx)
	if err == nil {
		return sess, nil
	}
	c.log.Warn("create instance failed, probing host once more", "error", err)

	// Final probe: the host may have come up between attempts.
	if sess, aerr := c.auto.attach(); aerr == nil {
		return sess, nil
	}
	return nil, err
}

func (c *connector) waitHostUp(ctx context.Context) error {
	deadline := time.Now().Add(c.hostWait)
	for !c.auto.hostRunning() {
		if time.Now().After(deadline) {
			return fmt.Errorf("host did not come up within %s", c.hostWait)
		}
		if err := wait(ctx, c.probeInterval); err != nil {
			return err
		}
	}
	return nil
}

// createInstance retries only the "server execution failed" race the host
// exhibits while still starting up.
func (c *connector) createInstance(ctx context.Context) (session, error) {
	var lastErr error
	for attempt := 0; attempt <= c.createRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, c.createBackoff); err != nil {
				return nil, err
			}
		}
		sess, err := c.auto.createInstance()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if !isServerExecutionFailed(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func isServerExecutionFailed(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "server execution failed")
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
