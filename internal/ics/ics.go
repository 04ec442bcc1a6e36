// Package ics renders one event per iCalendar document for PUT and parses
// documents fetched back for verification.
package ics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/macjediwizard/outlooksync/internal/event"
)

const (
	prodID         = "-//MacJediWizard//OutlookSync//EN"
	dateLayout     = "20060102"
	defaultSummary = "No Subject"

	firstReminder  = "-PT10M"
	secondReminder = "-PT3M"
)

// Options configure the rendering of every document.
type Options struct {
	// Tag, when set, prefixes every summary as "[tag] ".
	Tag string
	// SecondReminder attaches the -PT3M alarm in addition to -PT10M.
	SecondReminder bool
}

// Encode renders a single-event document. Timed events carry UTC
// DTSTART/DTEND and display alarms; all-day events carry date-valued
// DTSTART/DTEND and no alarms, since destination clients mishandle timed
// reminders on untimed events.
func Encode(ev event.Event, uid string, opts Options) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	ve := ical.NewEvent()
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetText(ical.PropSummary, summary(ev.Subject, opts.Tag))
	if ev.Body != "" {
		ve.Props.SetText(ical.PropDescription, ev.Body)
	}
	if ev.Location != "" {
		ve.Props.SetText(ical.PropLocation, ev.Location)
	}

	if ev.AllDay {
		setDate(ve.Props, ical.PropDateTimeStart, ev.StartLocal)
		setDate(ve.Props, ical.PropDateTimeEnd, ev.EndLocal)
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, ev.StartUTC.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndUTC.UTC())
		ve.Children = append(ve.Children, alarm(firstReminder))
		if opts.SecondReminder {
			ve.Children = append(ve.Children, alarm(secondReminder))
		}
	}

	cal.Children = append(cal.Children, ve.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("encode %s: %w", uid, err)
	}
	return buf.String(), nil
}

func summary(subject, tag string) string {
	if subject == "" {
		subject = defaultSummary
	}
	if tag != "" {
		return "[" + tag + "] " + subject
	}
	return subject
}

func setDate(props ical.Props, name string, t time.Time) {
	p := ical.NewProp(name)
	p.SetValueType(ical.ValueDate)
	p.Value = t.Format(dateLayout)
	props.Set(p)
}

func alarm(trigger string) *ical.Component {
	a := ical.NewComponent(ical.CompAlarm)
	a.Props.SetText(ical.PropAction, "DISPLAY")
	a.Props.SetText(ical.PropDescription, "Reminder")
	t := ical.NewProp(ical.PropTrigger)
	t.Value = trigger
	a.Props.Set(t)
	return a
}

// Document is the subset of a fetched event the reconciler compares against
// the desired state.
type Document struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	Alarms  int
}

// Decode parses the first VEVENT of an iCalendar document.
func Decode(body string) (*Document, error) {
	cal, err := ical.NewDecoder(strings.NewReader(body)).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		doc := &Document{}
		if uid, err := child.Props.Text(ical.PropUID); err == nil {
			doc.UID = uid
		}
		if s, err := child.Props.Text(ical.PropSummary); err == nil {
			doc.Summary = s
		}

		start := child.Props.Get(ical.PropDateTimeStart)
		end := child.Props.Get(ical.PropDateTimeEnd)
		if start == nil || end == nil {
			return nil, fmt.Errorf("event %s: missing DTSTART or DTEND", doc.UID)
		}
		doc.AllDay = start.ValueType() == ical.ValueDate
		if doc.Start, err = start.DateTime(time.UTC); err != nil {
			return nil, fmt.Errorf("event %s: bad DTSTART: %w", doc.UID, err)
		}
		if doc.End, err = end.DateTime(time.UTC); err != nil {
			return nil, fmt.Errorf("event %s: bad DTEND: %w", doc.UID, err)
		}

		for _, sub := range child.Children {
			if sub.Name == ical.CompAlarm {
				doc.Alarms++
			}
		}
		return doc, nil
	}
	return nil, fmt.Errorf("document contains no VEVENT")
}
