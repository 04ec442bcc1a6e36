// Package logging wires the rolling file sink and the coarse lifecycle
// event sink.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the rolling sink.
type Options struct {
	// Path of the log file; empty logs to stderr only.
	Path string
	// Level name: debug, info, warn or error. Unknown names mean info.
	Level string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the process logger. The returned closer flushes the rolling
// sink on shutdown.
func New(opts Options) (*slog.Logger, io.Closer) {
	var sink io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)

	if opts.Path != "" {
		roller := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
		}
		sink = io.MultiWriter(os.Stderr, roller)
		closer = roller
	}

	handler := slog.NewTextHandler(sink, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})
	return slog.New(handler), closer
}

// ParseLevel maps a configured level name; unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

// EventSink receives coarse lifecycle milestones, separate from the
// per-event log. On Windows this is backed by the system event log.
type EventSink interface {
	Started()
	Stopped()
	AuthFailure(detail string)
	ParseFailure(detail string)
}

// LogSink routes milestones into the process logger; the fallback on
// platforms without a system event log.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Started() { s.Log.Info("sync service started") }
func (s LogSink) Stopped() { s.Log.Info("sync service stopped") }
func (s LogSink) AuthFailure(detail string) {
	s.Log.Error("destination authentication failure", "detail", detail)
}
func (s LogSink) ParseFailure(detail string) {
	s.Log.Error("destination response parse failure", "detail", detail)
}
