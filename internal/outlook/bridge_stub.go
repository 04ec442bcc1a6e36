//go:build !windows

package outlook

import (
	"context"
	"fmt"
	"log/slog"
)

// NewBridge returns a stub on platforms without the automation host. Every
// fetch reports the host as unavailable, which the supervisor treats as
// "no data".
func NewBridge(log *slog.Logger) Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &stubBridge{log: log}
}

type stubBridge struct {
	log *slog.Logger
}

func (b *stubBridge) FetchAppointments(context.Context, Window) ([]Appointment, error) {
	return nil, fmt.Errorf("%w: automation host requires Windows", ErrHostUnavailable)
}

func (b *stubBridge) Close() {}
