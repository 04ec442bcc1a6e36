// Command outlooksync runs the one-way Outlook to iCloud calendar sync as a
// long-lived background process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/macjediwizard/outlooksync/internal/activity"
	"github.com/macjediwizard/outlooksync/internal/caldav"
	"github.com/macjediwizard/outlooksync/internal/config"
	"github.com/macjediwizard/outlooksync/internal/ics"
	"github.com/macjediwizard/outlooksync/internal/logging"
	"github.com/macjediwizard/outlooksync/internal/outlook"
	"github.com/macjediwizard/outlooksync/internal/sync"
	"github.com/macjediwizard/outlooksync/internal/timezone"
	"github.com/macjediwizard/outlooksync/internal/tray"
	"github.com/macjediwizard/outlooksync/internal/uid"
)

const lockFileName = "outlooksync.lock"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "outlooksync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log, logCloser := logging.New(logging.Options{
		Path:  cfg.LogFile,
		Level: cfg.LogLevel,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	unlock, err := acquireLock(lockDir(), log)
	if err != nil {
		log.Error("another instance is already running", "error", err)
		return err
	}
	defer unlock()

	events := logging.NewEventSink("outlooksync", log)
	events.Started()
	defer events.Stopped()

	status := tray.NewLogStatus(log)
	tracker := activity.NewTracker()
	zones := timezone.NewResolver(cfg.SourceTimeZoneId, cfg.TargetTimeZoneId, log)

	client, err := caldav.NewClient(cfg.CalendarURL(), cfg.ICloudUser, cfg.ICloudPassword, log)
	if err != nil {
		return fmt.Errorf("building CalDAV client: %w", err)
	}

	bridge := outlook.NewBridge(log)
	defer bridge.Close()

	engine := sync.NewEngine(client,
		uid.Builder{SourceID: cfg.SourceId},
		zones,
		ics.Options{Tag: cfg.EventTag, SecondReminder: cfg.SecondReminder()},
		status, tracker, log)

	supervisor := sync.NewSupervisor(cfg, bridge, engine, status, events, tracker, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The tray surface's exit menu shuts the service down like a signal.
	go func() {
		select {
		case <-status.Exit():
			stop()
		case <-ctx.Done():
		}
	}()

	log.Info("starting sync supervisor", "calendar_url", cfg.CalendarURL())
	if err := supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shut down cleanly")
	return nil
}

func lockDir() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}

// acquireLock enforces a single instance per machine via an exclusive lock
// file. A leftover file from a crashed run records a PID that is no longer
// alive; such a lock is reclaimed so the unattended daemon can restart
// without a human deleting the file.
func acquireLock(dir string, log *slog.Logger) (func(), error) {
	path := filepath.Join(dir, lockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(path) }, nil
		}

		pid, readErr := readLockPID(path)
		if readErr == nil && processAlive(pid) {
			return nil, fmt.Errorf("lock file %s held by running process %d", path, pid)
		}
		log.Warn("reclaiming stale lock file", "path", path, "pid", pid)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock file %s: %w", path, rmErr)
		}
	}
	return nil, fmt.Errorf("could not acquire lock file %s", path)
}

func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// processAlive reports whether the recorded PID belongs to a live process.
// Unreadable or nonsensical PIDs count as dead so a corrupted lock file does
// not wedge the daemon.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		// FindProcess opens a handle on Windows; success means it exists.
		p.Release()
		return true
	}
	// On Unix FindProcess always succeeds; signal 0 probes existence.
	return p.Signal(syscall.Signal(0)) == nil
}
