package outlook

import (
	"time"

	"github.com/macjediwizard/outlooksync/internal/recurrence"
)

// Outlook object model constants used by the bridge.
const (
	olFolderCalendar = 9

	olRecursDaily    = 0
	olRecursWeekly   = 1
	olRecursMonthly  = 2
	olRecursMonthNth = 3
	olRecursYearly   = 5
	olRecursYearNth  = 6

	olMeetingCanceled            = 5
	olMeetingReceivedAndCanceled = 7
)

// day-of-week mask bits, Sunday first.
const (
	olSunday    = 1
	olMonday    = 2
	olTuesday   = 4
	olWednesday = 8
	olThursday  = 16
	olFriday    = 32
	olSaturday  = 64
)

var maskBits = []struct {
	bit int
	day time.Weekday
}{
	{olSunday, time.Sunday},
	{olMonday, time.Monday},
	{olTuesday, time.Tuesday},
	{olWednesday, time.Wednesday},
	{olThursday, time.Thursday},
	{olFriday, time.Friday},
	{olSaturday, time.Saturday},
}

// frequencyFromType maps an OlRecurrenceType value; ok is false for values
// the expander does not support.
func frequencyFromType(t int) (recurrence.Frequency, bool) {
	switch t {
	case olRecursDaily:
		return recurrence.Daily, true
	case olRecursWeekly:
		return recurrence.Weekly, true
	case olRecursMonthly:
		return recurrence.Monthly, true
	case olRecursMonthNth:
		return recurrence.MonthlyNth, true
	case olRecursYearly:
		return recurrence.Yearly, true
	case olRecursYearNth:
		return recurrence.YearlyNth, true
	}
	return 0, false
}

// weekdaysFromMask expands an OlDaysOfWeek bit mask.
func weekdaysFromMask(mask int) []time.Weekday {
	var out []time.Weekday
	for _, mb := range maskBits {
		if mask&mb.bit != 0 {
			out = append(out, mb.day)
		}
	}
	return out
}

// cancelledStatus reports whether a MeetingStatus value marks the item as
// cancelled on either side.
func cancelledStatus(status int) bool {
	return status == olMeetingCanceled || status == olMeetingReceivedAndCanceled
}
