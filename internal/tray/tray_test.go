package tray

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClamp(t *testing.T) {
	short := "deleting 3/10 (30%)"
	if got := Clamp(short); got != short {
		t.Errorf("Clamp(%q) = %q", short, got)
	}

	long := strings.Repeat("x", MaxTextLen+20)
	got := Clamp(long)
	if len(got) != MaxTextLen {
		t.Errorf("len = %d, want %d", len(got), MaxTextLen)
	}
	if !strings.HasPrefix(long, got) {
		t.Error("clamped text is not a prefix of the input")
	}
}

func TestClampDoesNotSplitRunes(t *testing.T) {
	// 62 ASCII bytes followed by a 3-byte rune straddling the limit.
	text := strings.Repeat("x", MaxTextLen-1) + "€€"
	got := Clamp(text)
	if len(got) > MaxTextLen {
		t.Errorf("len = %d, want at most %d", len(got), MaxTextLen)
	}
	if !utf8.ValidString(got) {
		t.Errorf("clamped text is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("x", MaxTextLen-1) {
		t.Errorf("got %q, want the rune dropped whole", got)
	}
}

func TestLogStatusExitNeverFires(t *testing.T) {
	s := NewLogStatus(nil)
	select {
	case <-s.Exit():
		t.Error("fallback surface fired exit")
	default:
	}
	// Phase transitions and text updates must be safe without a real icon.
	s.SetUpdating()
	s.SetDeleting()
	s.SetIdle()
	s.UpdateText("updating 1/2 (50%)")
}
