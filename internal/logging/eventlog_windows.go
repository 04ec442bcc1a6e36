//go:build windows

package logging

import (
	"log/slog"

	"golang.org/x/sys/windows/svc/eventlog"
)

// event ids in the application log; stable so operators can filter.
const (
	eidStarted      = 100
	eidStopped      = 101
	eidAuthFailure  = 200
	eidParseFailure = 201
)

// NewEventSink opens the system event log for the given source. Opening can
// fail when the source was never registered; milestones then go to the
// process logger instead.
func NewEventSink(source string, fallback *slog.Logger) EventSink {
	l, err := eventlog.Open(source)
	if err != nil {
		fallback.Warn("system event log unavailable", "source", source, "error", err)
		return LogSink{Log: fallback}
	}
	return &windowsEventSink{log: l}
}

type windowsEventSink struct {
	log *eventlog.Log
}

func (s *windowsEventSink) Started() {
	_ = s.log.Info(eidStarted, "outlooksync started")
}

func (s *windowsEventSink) Stopped() {
	_ = s.log.Info(eidStopped, "outlooksync stopped")
}

func (s *windowsEventSink) AuthFailure(detail string) {
	_ = s.log.Error(eidAuthFailure, "destination authentication failure: "+detail)
}

func (s *windowsEventSink) ParseFailure(detail string) {
	_ = s.log.Error(eidParseFailure, "destination response parse failure: "+detail)
}
