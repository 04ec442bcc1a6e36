// Package tray defines the status surface the sync engine reports to. The
// actual icon implementation is a platform collaborator; this package ships
// the contract plus a logger-backed fallback so the engine never checks for
// nil.
package tray

import (
	"log/slog"
	"sync"
	"unicode/utf8"
)

// MaxTextLen is the longest tooltip the host surface accepts.
const MaxTextLen = 63

// Status receives the engine's phase transitions and progress text.
type Status interface {
	SetIdle()
	SetUpdating()
	SetDeleting()
	// UpdateText sets the tooltip; implementations receive at most
	// MaxTextLen characters.
	UpdateText(text string)
}

// UI is a status surface with a user menu; Exit fires when the user asks
// the process to stop.
type UI interface {
	Status
	// Exit never closes for surfaces without a menu.
	Exit() <-chan struct{}
}

// Clamp shortens text to at most MaxTextLen bytes without splitting a rune.
func Clamp(text string) string {
	if len(text) <= MaxTextLen {
		return text
	}
	cut := MaxTextLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// LogStatus is the fallback surface: phases and tooltips go to the log, the
// exit channel never fires.
type LogStatus struct {
	log *slog.Logger

	mu    sync.Mutex
	phase string
	exit  chan struct{}
}

func NewLogStatus(log *slog.Logger) *LogStatus {
	if log == nil {
		log = slog.Default()
	}
	return &LogStatus{log: log, exit: make(chan struct{})}
}

func (s *LogStatus) SetIdle()     { s.setPhase("idle") }
func (s *LogStatus) SetUpdating() { s.setPhase("updating") }
func (s *LogStatus) SetDeleting() { s.setPhase("deleting") }

func (s *LogStatus) setPhase(phase string) {
	s.mu.Lock()
	changed := s.phase != phase
	s.phase = phase
	s.mu.Unlock()
	if changed {
		s.log.Debug("status phase", "phase", phase)
	}
}

func (s *LogStatus) UpdateText(text string) {
	s.log.Debug("status text", "text", Clamp(text))
}

func (s *LogStatus) Exit() <-chan struct{} { return s.exit }
