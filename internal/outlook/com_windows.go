//go:build windows

package outlook

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/macjediwizard/outlooksync/internal/recurrence"
)

const outlookProgID = "Outlook.Application"

// comAutomation drives the Outlook COM surface. All of its methods run on
// the apartment worker thread.
type comAutomation struct {
	log *slog.Logger
}

func (a *comAutomation) hostRunning() bool {
	unk, err := oleutil.GetActiveObject(outlookProgID)
	if err != nil {
		return false
	}
	unk.Release()
	return true
}

// startHost launches Outlook through the shell association so the user's
// configured profile comes up.
func (a *comAutomation) startHost() error {
	return exec.Command("cmd", "/C", "start", "", "outlook.exe").Start()
}

func (a *comAutomation) attach() (session, error) {
	unk, err := oleutil.GetActiveObject(outlookProgID)
	if err != nil {
		return nil, fmt.Errorf("attach to running host: %w", err)
	}
	return a.sessionFromUnknown(unk)
}

func (a *comAutomation) createInstance() (session, error) {
	unk, err := oleutil.CreateObject(outlookProgID)
	if err != nil {
		return nil, fmt.Errorf("create automation instance: %w", err)
	}
	return a.sessionFromUnknown(unk)
}

func (a *comAutomation) sessionFromUnknown(unk *ole.IUnknown) (session, error) {
	app, err := unk.QueryInterface(ole.IID_IDispatch)
	unk.Release()
	if err != nil {
		return nil, fmt.Errorf("query IDispatch: %w", err)
	}
	return &comSession{app: app, log: a.log}, nil
}

// comSession scopes one attached application object. Handles acquired while
// reading the calendar are released inside appointments in reverse order;
// close releases the application itself.
type comSession struct {
	app *ole.IDispatch
	log *slog.Logger
}

func (s *comSession) close() {
	release(s.app)
	s.app = nil
}

func (s *comSession) appointments(w Window) ([]Appointment, error) {
	ns, err := callObject(s.app, "GetNamespace", "MAPI")
	if err != nil {
		return nil, fmt.Errorf("MAPI namespace: %w", err)
	}
	defer release(ns)

	folder, err := callObject(ns, "GetDefaultFolder", olFolderCalendar)
	if err != nil {
		return nil, fmt.Errorf("calendar folder: %w", err)
	}
	defer release(folder)

	items, err := propObject(folder, "Items")
	if err != nil {
		return nil, fmt.Errorf("folder items: %w", err)
	}
	defer release(items)

	if _, err := oleutil.CallMethod(items, "Sort", "[Start]"); err != nil {
		return nil, fmt.Errorf("sorting items: %w", err)
	}
	// Recurrences are expanded by our own expander; master items are enough.
	if _, err := oleutil.PutProperty(items, "IncludeRecurrences", false); err != nil {
		s.log.Debug("could not disable IncludeRecurrences", "error", err)
	}

	count := propInt(items, "Count")
	out := make([]Appointment, 0, count)
	for i := 1; i <= count; i++ {
		item, err := callObject(items, "Item", i)
		if err != nil {
			s.log.Warn("skipping unreadable item", "index", i, "error", err)
			continue
		}
		if appt, ok := s.readAppointment(item, w); ok {
			out = append(out, appt)
		}
		release(item)
	}
	return out, nil
}

func (s *comSession) readAppointment(item *ole.IDispatch, w Window) (Appointment, bool) {
	appt := Appointment{
		Subject:    propString(item, "Subject"),
		Body:       propString(item, "Body"),
		Location:   propString(item, "Location"),
		GlobalID:   propString(item, "GlobalAppointmentID"),
		StartLocal: propTime(item, "Start"),
		EndLocal:   propTime(item, "End"),
		StartUTC:   propTime(item, "StartUTC"),
		EndUTC:     propTime(item, "EndUTC"),
		AllDay:     propBool(item, "AllDayEvent"),
		Cancelled:  cancelledStatus(propInt(item, "MeetingStatus")),
	}

	if !propBool(item, "IsRecurring") {
		if !overlaps(appt, w) {
			return Appointment{}, false
		}
		return appt, true
	}

	series, ok := s.readPattern(item, appt)
	if !ok {
		return Appointment{}, false
	}
	appt.Series = series
	return appt, true
}

func (s *comSession) readPattern(item *ole.IDispatch, appt Appointment) (*recurrence.Series, bool) {
	pat, err := callObject(item, "GetRecurrencePattern")
	if err != nil {
		s.log.Warn("recurring item without readable pattern",
			"subject", appt.Subject, "error", err)
		return nil, false
	}
	defer release(pat)

	freq, ok := frequencyFromType(propInt(pat, "RecurrenceType"))
	if !ok {
		s.log.Warn("skipping series with unsupported recurrence type",
			"subject", appt.Subject, "type", propInt(pat, "RecurrenceType"))
		return nil, false
	}

	series := &recurrence.Series{
		Frequency:  freq,
		Interval:   propInt(pat, "Interval"),
		Weekdays:   weekdaysFromMask(propInt(pat, "DayOfWeekMask")),
		DayOfMonth: propInt(pat, "DayOfMonth"),
		Month:      time.Month(propInt(pat, "MonthOfYear")),
		Instance:   propInt(pat, "Instance"),
		AllDay:     appt.AllDay,
	}

	if !propBool(pat, "NoEndDate") {
		if occ := propInt(pat, "Occurrences"); occ > 0 {
			series.Count = occ
		} else {
			series.Until = propTime(pat, "PatternEndDate")
		}
	}

	psd := propTime(pat, "PatternStartDate")
	series.PatternStart = combineDayTime(psd, propTime(pat, "StartTime"))
	series.PatternEnd = combineDayTime(psd, propTime(pat, "EndTime"))
	if !series.PatternEnd.After(series.PatternStart) && !series.PatternEnd.IsZero() {
		series.PatternEnd = series.PatternEnd.AddDate(0, 0, 1)
	}

	s.readExceptions(pat, series)
	return series, true
}

func (s *comSession) readExceptions(pat *ole.IDispatch, series *recurrence.Series) {
	exs, err := propObject(pat, "Exceptions")
	if err != nil {
		return
	}
	defer release(exs)

	count := propInt(exs, "Count")
	for j := 1; j <= count; j++ {
		e, err := callObject(exs, "Item", j)
		if err != nil {
			continue
		}

		ex := recurrence.Exception{OriginalDate: propTime(e, "OriginalDate")}
		if !propBool(e, "Deleted") {
			if a, err := propObject(e, "AppointmentItem"); err == nil {
				ex.Override = &recurrence.Override{
					Subject:    propString(a, "Subject"),
					Body:       propString(a, "Body"),
					Location:   propString(a, "Location"),
					StartLocal: propTime(a, "Start"),
					EndLocal:   propTime(a, "End"),
					StartUTC:   propTime(a, "StartUTC"),
					EndUTC:     propTime(a, "EndUTC"),
					AllDay:     propBool(a, "AllDayEvent"),
				}
				release(a)
			}
		}
		series.Exceptions = append(series.Exceptions, ex)
		release(e)
	}
}

// overlaps filters single appointments against the fetch window using the
// UTC pair when available.
func overlaps(appt Appointment, w Window) bool {
	start, end := appt.StartUTC, appt.EndUTC
	if start.IsZero() {
		start = appt.StartLocal
	}
	if end.IsZero() {
		end = appt.EndLocal
	}
	if start.IsZero() && end.IsZero() {
		// Keep it; the normalizer decides what to do with it.
		return true
	}
	return end.After(w.From) && start.Before(w.To)
}

func combineDayTime(day, tod time.Time) time.Time {
	if day.IsZero() {
		return tod
	}
	if tod.IsZero() {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), 0, day.Location())
}

// Property helpers. Failed reads yield zero values; the normalizer repairs
// or rejects incomplete appointments downstream.

func callObject(d *ole.IDispatch, name string, args ...interface{}) (*ole.IDispatch, error) {
	v, err := oleutil.CallMethod(d, name, args...)
	if err != nil {
		return nil, err
	}
	obj := v.ToIDispatch()
	if obj == nil {
		v.Clear()
		return nil, fmt.Errorf("%s returned no object", name)
	}
	return obj, nil
}

func propObject(d *ole.IDispatch, name string) (*ole.IDispatch, error) {
	v, err := oleutil.GetProperty(d, name)
	if err != nil {
		return nil, err
	}
	obj := v.ToIDispatch()
	if obj == nil {
		v.Clear()
		return nil, fmt.Errorf("%s returned no object", name)
	}
	return obj, nil
}

func propString(d *ole.IDispatch, name string) string {
	v, err := oleutil.GetProperty(d, name)
	if err != nil {
		return ""
	}
	defer v.Clear()
	return v.ToString()
}

func propInt(d *ole.IDispatch, name string) int {
	v, err := oleutil.GetProperty(d, name)
	if err != nil {
		return 0
	}
	defer v.Clear()
	switch n := v.Value().(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func propBool(d *ole.IDispatch, name string) bool {
	v, err := oleutil.GetProperty(d, name)
	if err != nil {
		return false
	}
	defer v.Clear()
	b, _ := v.Value().(bool)
	return b
}

func propTime(d *ole.IDispatch, name string) time.Time {
	v, err := oleutil.GetProperty(d, name)
	if err != nil {
		return time.Time{}
	}
	defer v.Clear()
	t, _ := v.Value().(time.Time)
	return t
}

// release never panics; a nil or already-released handle is a no-op.
func release(d *ole.IDispatch) {
	if d == nil {
		return
	}
	defer func() { _ = recover() }()
	d.Release()
}
