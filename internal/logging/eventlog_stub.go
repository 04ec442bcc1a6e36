//go:build !windows

package logging

import "log/slog"

// NewEventSink routes lifecycle milestones to the process logger on
// platforms without a system event log.
func NewEventSink(source string, fallback *slog.Logger) EventSink {
	return LogSink{Log: fallback}
}
