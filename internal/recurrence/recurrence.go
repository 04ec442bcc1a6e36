// Package recurrence translates source recurrence descriptors into RRULE
// form and enumerates concrete occurrences inside a sync window.
package recurrence

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/macjediwizard/outlooksync/internal/event"
	"github.com/macjediwizard/outlooksync/internal/timezone"
)

// ErrUnsupportedFrequency marks a recurrence type the expander cannot
// enumerate; the series is skipped, not fatal.
var ErrUnsupportedFrequency = errors.New("unsupported recurrence frequency")

// fallbackDuration is used when neither the pattern, the master nor the
// appointment itself yields a positive span.
const fallbackDuration = 30 * time.Minute

// Frequency enumerates the recurrence types the source can deliver.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	// MonthlyNth is "the Nth weekday of every Mth month".
	MonthlyNth
	Yearly
	// YearlyNth is "the Nth weekday of a given month every year".
	YearlyNth
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case MonthlyNth:
		return "monthly-nth"
	case Yearly:
		return "yearly"
	case YearlyNth:
		return "yearly-nth"
	}
	return "unknown"
}

// Series describes one recurring appointment pattern.
type Series struct {
	Frequency Frequency
	Interval  int

	// Weekdays is the day-of-week mask for weekly and nth patterns.
	Weekdays []time.Weekday
	// DayOfMonth applies to monthly and yearly patterns.
	DayOfMonth int
	// Month applies to yearly patterns.
	Month time.Month
	// Instance is the 1-based nth weekday for the nth patterns; 5 means
	// "last".
	Instance int

	// Termination: Count occurrences, an Until date, or neither (open end).
	Count int
	Until time.Time

	// PatternStart/PatternEnd are the local start and end of the first
	// occurrence as recorded on the pattern itself.
	PatternStart time.Time
	PatternEnd   time.Time

	AllDay bool

	Exceptions []Exception
}

// Exception removes or replaces one occurrence of a series.
type Exception struct {
	// OriginalDate is the source-local date of the occurrence the
	// exception replaces.
	OriginalDate time.Time
	// Override is nil when the occurrence was deleted outright.
	Override *Override
}

// Override is a modified occurrence with optional field patches; empty
// strings inherit the master's values.
type Override struct {
	Subject  string
	Body     string
	Location string

	StartLocal time.Time
	EndLocal   time.Time
	StartUTC   time.Time
	EndUTC     time.Time

	AllDay bool
}

var weekdayMap = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Expand enumerates the series' occurrences whose start lies in [from, to].
// Master supplies the series' subject, body, location, global id and the
// last-resort duration. Exception overrides win over rule-driven occurrences
// on the same original date.
func Expand(master event.Raw, s Series, from, to time.Time, zones *timezone.Resolver, log *slog.Logger) ([]event.Raw, error) {
	if log == nil {
		log = slog.Default()
	}

	base := s.PatternStart
	if base.IsZero() {
		base = master.StartLocal
	}
	if base.IsZero() && !master.StartUTC.IsZero() {
		base = zones.FromUTC(master.StartUTC)
	}
	if base.IsZero() {
		log.Warn("series has no resolvable start, skipping", "global_id", master.GlobalID)
		return nil, nil
	}
	base = inZone(base, zones.Source)

	dur := seriesDuration(master, s, log)

	rule, err := buildRule(s, base, zones.Source)
	if err != nil {
		return nil, err
	}

	fromLocal := from.In(zones.Source)
	toLocal := to.In(zones.Source)

	// Exceptions first: their original dates are skipped below and their
	// overrides emitted directly when they land in the window.
	skip := make(map[string]struct{}, len(s.Exceptions))
	var out []event.Raw
	for _, ex := range s.Exceptions {
		if !ex.OriginalDate.IsZero() {
			skip[dayKey(inZone(ex.OriginalDate, zones.Source))] = struct{}{}
		}
		ov := ex.Override
		if ov == nil {
			continue
		}
		start := ov.StartLocal
		if start.IsZero() && !ov.StartUTC.IsZero() {
			start = zones.FromUTC(ov.StartUTC)
		}
		start = inZone(start, zones.Source)
		if start.Before(fromLocal) || start.After(toLocal) {
			continue
		}
		out = append(out, overrideRaw(master, ov, start, dur, zones))
	}

	for _, t := range rule.Between(fromLocal, toLocal, true) {
		start := inZone(t, zones.Source)
		if _, skipped := skip[dayKey(start)]; skipped {
			continue
		}
		end := start.Add(dur)
		out = append(out, event.Raw{
			Subject:    master.Subject,
			Body:       master.Body,
			Location:   master.Location,
			GlobalID:   master.GlobalID,
			StartLocal: start,
			EndLocal:   end,
			StartUTC:   zones.ToUTC(start),
			EndUTC:     zones.ToUTC(end),
			AllDay:     s.AllDay,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartUTC.Before(out[j].StartUTC) })
	return out, nil
}

func overrideRaw(master event.Raw, ov *Override, start time.Time, dur time.Duration, zones *timezone.Resolver) event.Raw {
	end := ov.EndLocal
	if end.IsZero() && !ov.EndUTC.IsZero() {
		end = zones.FromUTC(ov.EndUTC)
	}
	end = inZone(end, zones.Source)
	if !end.After(start) {
		end = start.Add(dur)
	}

	raw := event.Raw{
		Subject:    master.Subject,
		Body:       master.Body,
		Location:   master.Location,
		GlobalID:   master.GlobalID,
		StartLocal: start,
		EndLocal:   end,
		StartUTC:   zones.ToUTC(start),
		EndUTC:     zones.ToUTC(end),
		AllDay:     ov.AllDay,
	}
	if ov.Subject != "" {
		raw.Subject = ov.Subject
	}
	if ov.Body != "" {
		raw.Body = ov.Body
	}
	if ov.Location != "" {
		raw.Location = ov.Location
	}
	return raw
}

// seriesDuration resolves the occurrence span: pattern times, then the
// master's own times, then the fallback.
func seriesDuration(master event.Raw, s Series, log *slog.Logger) time.Duration {
	if !s.PatternStart.IsZero() && s.PatternEnd.After(s.PatternStart) {
		return s.PatternEnd.Sub(s.PatternStart)
	}
	if !master.StartLocal.IsZero() && master.EndLocal.After(master.StartLocal) {
		return master.EndLocal.Sub(master.StartLocal)
	}
	if !master.StartUTC.IsZero() && master.EndUTC.After(master.StartUTC) {
		return master.EndUTC.Sub(master.StartUTC)
	}
	log.Warn("series yields no positive duration, assuming 30 minutes",
		"global_id", master.GlobalID, "subject", master.Subject)
	return fallbackDuration
}

func buildRule(s Series, dtstart time.Time, loc *time.Location) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Interval: s.Interval,
		Dtstart:  dtstart,
	}
	if opt.Interval <= 0 {
		opt.Interval = 1
	}
	if s.Count > 0 {
		opt.Count = s.Count
	}
	if !s.Until.IsZero() {
		// The source records the termination as a date; include the whole
		// final day.
		u := s.Until.In(loc)
		opt.Until = time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, loc)
	}

	nth := s.Instance
	if nth >= 5 {
		nth = -1 // "last"
	}

	switch s.Frequency {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = toRRuleWeekdays(s.Weekdays, 0)
	case Monthly:
		opt.Freq = rrule.MONTHLY
		if s.DayOfMonth > 0 {
			opt.Bymonthday = []int{s.DayOfMonth}
		}
	case MonthlyNth:
		opt.Freq = rrule.MONTHLY
		opt.Byweekday = toRRuleWeekdays(s.Weekdays, nth)
	case Yearly:
		opt.Freq = rrule.YEARLY
		if s.Month > 0 {
			opt.Bymonth = []int{int(s.Month)}
		}
		if s.DayOfMonth > 0 {
			opt.Bymonthday = []int{s.DayOfMonth}
		}
	case YearlyNth:
		opt.Freq = rrule.YEARLY
		if s.Month > 0 {
			opt.Bymonth = []int{int(s.Month)}
		}
		opt.Byweekday = toRRuleWeekdays(s.Weekdays, nth)
	default:
		return nil, ErrUnsupportedFrequency
	}

	return rrule.NewRRule(opt)
}

func toRRuleWeekdays(days []time.Weekday, nth int) []rrule.Weekday {
	out := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		wd := weekdayMap[d]
		if nth != 0 {
			wd = wd.Nth(nth)
		}
		out = append(out, wd)
	}
	return out
}

func inZone(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(),
		t.Second(), 0, loc)
}

func dayKey(t time.Time) string {
	return t.Format("20060102")
}
