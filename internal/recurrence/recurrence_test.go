package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/macjediwizard/outlooksync/internal/event"
	"github.com/macjediwizard/outlooksync/internal/timezone"
)

var testZones = timezone.NewResolver("Europe/Berlin", "Europe/Berlin", nil)

func weeklyMaster() event.Raw {
	return event.Raw{
		Subject:  "Team sync",
		GlobalID: "GID-1",
	}
}

func TestExpandWeekly(t *testing.T) {
	s := Series{
		Frequency:    Weekly,
		Interval:     1,
		Weekdays:     []time.Weekday{time.Monday, time.Wednesday},
		PatternStart: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC), // a Monday
		PatternEnd:   time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	}
	from := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC)

	out, err := Expand(weeklyMaster(), s, from, to, testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	// Two weeks of Mon+Wed: Feb 3, 5, 10, 12.
	if len(out) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(out))
	}
	wantDays := []int{3, 5, 10, 12}
	for i, raw := range out {
		if raw.StartLocal.Day() != wantDays[i] {
			t.Errorf("occurrence %d on day %d, want %d", i, raw.StartLocal.Day(), wantDays[i])
		}
		if raw.StartLocal.Hour() != 9 {
			t.Errorf("occurrence %d starts at hour %d, want 9", i, raw.StartLocal.Hour())
		}
		if got := raw.EndLocal.Sub(raw.StartLocal); got != time.Hour {
			t.Errorf("occurrence %d spans %v, want 1h", i, got)
		}
		if raw.Subject != "Team sync" || raw.GlobalID != "GID-1" {
			t.Errorf("occurrence %d lost master fields: %+v", i, raw)
		}
	}
}

func TestExpandSkipsDeletedException(t *testing.T) {
	s := Series{
		Frequency:    Weekly,
		Weekdays:     []time.Weekday{time.Monday},
		PatternStart: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
		PatternEnd:   time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
		Exceptions: []Exception{
			{OriginalDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)},
		},
	}
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)

	out, err := Expand(weeklyMaster(), s, from, to, testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	// Feb 3 and Feb 17; the 10th is deleted.
	if len(out) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(out))
	}
	for _, raw := range out {
		if raw.StartLocal.Day() == 10 {
			t.Error("deleted occurrence still emitted")
		}
	}
}

func TestExpandEmitsOverride(t *testing.T) {
	s := Series{
		Frequency:    Weekly,
		Weekdays:     []time.Weekday{time.Monday},
		PatternStart: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
		PatternEnd:   time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
		Exceptions: []Exception{
			{
				// The Feb 10 occurrence moved to Feb 11 with a new subject.
				OriginalDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
				Override: &Override{
					Subject:    "Team sync (moved)",
					StartLocal: time.Date(2025, 2, 11, 14, 0, 0, 0, time.UTC),
					EndLocal:   time.Date(2025, 2, 11, 15, 0, 0, 0, time.UTC),
				},
			},
		},
	}
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)

	out, err := Expand(weeklyMaster(), s, from, to, testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(out))
	}
	// Sorted by start: Feb 3 regular, Feb 11 override.
	if out[0].StartLocal.Day() != 3 || out[0].Subject != "Team sync" {
		t.Errorf("first occurrence = %v %q", out[0].StartLocal, out[0].Subject)
	}
	ov := out[1]
	if ov.StartLocal.Day() != 11 || ov.StartLocal.Hour() != 14 {
		t.Errorf("override start = %v", ov.StartLocal)
	}
	if ov.Subject != "Team sync (moved)" {
		t.Errorf("override subject = %q", ov.Subject)
	}
	if ov.GlobalID != "GID-1" {
		t.Errorf("override lost master global id: %q", ov.GlobalID)
	}
}

func TestExpandOverrideInheritsMasterFields(t *testing.T) {
	master := event.Raw{
		Subject:  "Review",
		Location: "Room 4",
		GlobalID: "GID-2",
	}
	s := Series{
		Frequency:    Daily,
		PatternStart: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
		PatternEnd:   time.Date(2025, 2, 3, 9, 30, 0, 0, time.UTC),
		Count:        1,
		Exceptions: []Exception{
			{
				OriginalDate: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
				Override: &Override{
					StartLocal: time.Date(2025, 2, 3, 11, 0, 0, 0, time.UTC),
				},
			},
		},
	}
	out, err := Expand(master, s,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(out))
	}
	ov := out[0]
	if ov.Subject != "Review" || ov.Location != "Room 4" {
		t.Errorf("override did not inherit master fields: %+v", ov)
	}
	// No override end: the series duration applies.
	if got := ov.EndLocal.Sub(ov.StartLocal); got != 30*time.Minute {
		t.Errorf("override spans %v, want 30m", got)
	}
}

func TestExpandCountTermination(t *testing.T) {
	s := Series{
		Frequency:    Daily,
		Count:        3,
		PatternStart: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
		PatternEnd:   time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	}
	out, err := Expand(weeklyMaster(), s,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(out) != 3 {
		t.Errorf("got %d occurrences, want 3", len(out))
	}
}

func TestExpandUntilIncludesFinalDay(t *testing.T) {
	s := Series{
		Frequency:    Daily,
		Until:        time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC),
		PatternStart: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
		PatternEnd:   time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	}
	out, err := Expand(weeklyMaster(), s,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	// Feb 3, 4 and 5: the 09:00 occurrence on the until date still counts.
	if len(out) != 3 {
		t.Errorf("got %d occurrences, want 3", len(out))
	}
}

func TestExpandMonthlyNthLast(t *testing.T) {
	s := Series{
		Frequency:    MonthlyNth,
		Instance:     5, // source encoding for "last"
		Weekdays:     []time.Weekday{time.Friday},
		PatternStart: time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC),
		PatternEnd:   time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC),
	}
	out, err := Expand(weeklyMaster(), s,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(out))
	}
	// Last Fridays: Feb 28 and Mar 28.
	if out[0].StartLocal.Day() != 28 || out[0].StartLocal.Month() != time.February {
		t.Errorf("first occurrence = %v, want Feb 28", out[0].StartLocal)
	}
	if out[1].StartLocal.Day() != 28 || out[1].StartLocal.Month() != time.March {
		t.Errorf("second occurrence = %v, want Mar 28", out[1].StartLocal)
	}
}

func TestExpandYearly(t *testing.T) {
	s := Series{
		Frequency:    Yearly,
		Month:        time.July,
		DayOfMonth:   4,
		PatternStart: time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
		PatternEnd:   time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC),
		AllDay:       true,
	}
	out, err := Expand(weeklyMaster(), s,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(out))
	}
	if out[0].StartLocal.Month() != time.July || out[0].StartLocal.Day() != 4 {
		t.Errorf("occurrence = %v, want Jul 4", out[0].StartLocal)
	}
	if !out[0].AllDay {
		t.Error("all-day flag not propagated")
	}
}

func TestExpandFallbackDuration(t *testing.T) {
	s := Series{
		Frequency:    Daily,
		Count:        1,
		PatternStart: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
		// PatternEnd missing; the master carries no times either.
	}
	out, err := Expand(weeklyMaster(), s,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(out))
	}
	if got := out[0].EndLocal.Sub(out[0].StartLocal); got != fallbackDuration {
		t.Errorf("fallback span = %v, want %v", got, fallbackDuration)
	}
}

func TestExpandUnsupportedFrequency(t *testing.T) {
	s := Series{
		Frequency:    Frequency(99),
		PatternStart: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
	}
	_, err := Expand(weeklyMaster(), s,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), testZones, nil)
	if !errors.Is(err, ErrUnsupportedFrequency) {
		t.Errorf("error = %v, want ErrUnsupportedFrequency", err)
	}
}

func TestExpandNoResolvableStart(t *testing.T) {
	out, err := Expand(event.Raw{GlobalID: "GID-3"}, Series{Frequency: Daily},
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), testZones, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("got %d occurrences, want none", len(out))
	}
}
