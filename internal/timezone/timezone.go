// Package timezone resolves the source and target calendar zones and keeps
// the wall-clock / UTC views of an appointment consistent.
package timezone

import (
	"log/slog"
	"time"
)

// DefaultTolerance is the allowed drift between a stored wall-clock time and
// the one derived from the UTC instant before the pair is considered
// inconsistent.
const DefaultTolerance = time.Minute

// windowsZones maps the Windows display names Outlook hands out to IANA
// identifiers. The table covers the zones seen in the field; anything else
// falls back to the host zone.
var windowsZones = map[string]string{
	"Dateline Standard Time":          "Etc/GMT+12",
	"UTC":                             "Etc/UTC",
	"GMT Standard Time":               "Europe/London",
	"Greenwich Standard Time":         "Atlantic/Reykjavik",
	"W. Europe Standard Time":         "Europe/Berlin",
	"Central Europe Standard Time":    "Europe/Budapest",
	"Romance Standard Time":           "Europe/Paris",
	"Central European Standard Time":  "Europe/Warsaw",
	"E. Europe Standard Time":         "Europe/Chisinau",
	"FLE Standard Time":               "Europe/Kiev",
	"GTB Standard Time":               "Europe/Bucharest",
	"Russian Standard Time":           "Europe/Moscow",
	"Turkey Standard Time":            "Europe/Istanbul",
	"Israel Standard Time":            "Asia/Jerusalem",
	"Arabian Standard Time":           "Asia/Dubai",
	"India Standard Time":             "Asia/Kolkata",
	"SE Asia Standard Time":           "Asia/Bangkok",
	"China Standard Time":             "Asia/Shanghai",
	"Singapore Standard Time":         "Asia/Singapore",
	"Tokyo Standard Time":             "Asia/Tokyo",
	"Korea Standard Time":             "Asia/Seoul",
	"AUS Eastern Standard Time":       "Australia/Sydney",
	"New Zealand Standard Time":       "Pacific/Auckland",
	"Azores Standard Time":            "Atlantic/Azores",
	"Cape Verde Standard Time":        "Atlantic/Cape_Verde",
	"Greenland Standard Time":         "America/Godthab",
	"Newfoundland Standard Time":      "America/St_Johns",
	"Atlantic Standard Time":          "America/Halifax",
	"Eastern Standard Time":           "America/New_York",
	"US Eastern Standard Time":        "America/Indiana/Indianapolis",
	"Central Standard Time":           "America/Chicago",
	"Canada Central Standard Time":    "America/Regina",
	"Mountain Standard Time":          "America/Denver",
	"US Mountain Standard Time":       "America/Phoenix",
	"Pacific Standard Time":           "America/Los_Angeles",
	"Alaskan Standard Time":           "America/Anchorage",
	"Hawaiian Standard Time":          "Pacific/Honolulu",
	"SA Pacific Standard Time":        "America/Bogota",
	"Argentina Standard Time":         "America/Buenos_Aires",
	"E. South America Standard Time":  "America/Sao_Paulo",
	"South Africa Standard Time":      "Africa/Johannesburg",
	"Egypt Standard Time":             "Africa/Cairo",
	"W. Central Africa Standard Time": "Africa/Lagos",
}

// Resolver converts between source-local wall clock, UTC and target-local
// time using the configured zones.
type Resolver struct {
	Source    *time.Location
	Target    *time.Location
	Tolerance time.Duration

	log *slog.Logger
}

// NewResolver resolves the configured zone names. Either name may be an IANA
// identifier or a Windows display name; an empty or unknown name resolves to
// the host zone with a warning rather than failing the cycle.
func NewResolver(sourceID, targetID string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		Source:    resolve(sourceID, log),
		Target:    resolve(targetID, log),
		Tolerance: DefaultTolerance,
		log:       log,
	}
}

func resolve(id string, log *slog.Logger) *time.Location {
	if id == "" {
		return time.Local
	}
	if loc, err := time.LoadLocation(id); err == nil {
		return loc
	}
	if iana, ok := windowsZones[id]; ok {
		if loc, err := time.LoadLocation(iana); err == nil {
			return loc
		}
	}
	log.Warn("unknown time zone, falling back to host zone", "zone", id)
	return time.Local
}

// SameZone reports whether source and target resolve to the same zone.
func (r *Resolver) SameZone() bool {
	return r.Source.String() == r.Target.String()
}

// ToUTC interprets t's wall-clock fields in the source zone and returns the
// corresponding instant in UTC.
func (r *Resolver) ToUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(),
		t.Second(), t.Nanosecond(), r.Source).UTC()
}

// FromUTC returns the source-local view of a UTC instant.
func (r *Resolver) FromUTC(t time.Time) time.Time {
	return t.In(r.Source)
}

// TargetFromUTC returns the target-local view of a UTC instant.
func (r *Resolver) TargetFromUTC(t time.Time) time.Time {
	return t.In(r.Target)
}

// WithinTolerance reports whether two times lie within the configured
// tolerance of each other.
func (r *Resolver) WithinTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= r.Tolerance
}

// SameWallClock reports whether two times share wall-clock fields to the
// minute, regardless of their locations.
func SameWallClock(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day() &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute()
}
