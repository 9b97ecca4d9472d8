// Package datenorm turns instance timestamps into instants and decides
// whether two instants fall on the same calendar day.
//
// Calendar policy:
// "Same day" means same year and same day-of-year after converting both
// instants into one reference zone, by default the host's local zone. This
// matches what a user means by "finalized today"; it is not a UTC day
// boundary. The zone is explicit on Calendar so the policy is testable.
package datenorm

import (
	"fmt"
	"strings"
	"time"

	"formsummary/pkg/optional"
)

// Layouts accepted by ParseInstant. Fractional seconds are accepted by the
// Go parser after a seconds field even though the layout omits them.
const (
	layoutSeconds = "2006-01-02T15:04:05Z07:00"
	layoutMinutes = "2006-01-02T15:04Z07:00"
)

// ParseInstant parses an ISO-8601 timestamp carrying an explicit UTC offset
// ("Z" or ±HH:MM). Anything else, including a bare date or a local time with
// no offset, is absent.
func ParseInstant(text string) optional.Value[time.Time] {
	text = strings.TrimSpace(text)
	if len(text) < len("2006-01-02T15:04Z") || text[10] != 'T' || !strictClock(text) {
		return optional.None[time.Time]()
	}
	for _, layout := range []string{layoutSeconds, layoutMinutes} {
		if t, err := time.Parse(layout, text); err == nil {
			return optional.Some(t)
		}
	}
	return optional.None[time.Time]()
}

// strictClock checks the parts time.Parse is lenient about: the hour must
// have two digits and a fraction must follow a '.', never a ','.
func strictClock(text string) bool {
	if !isDigits(text[11:13]) || text[13] != ':' || !isDigits(text[14:16]) {
		return false
	}
	if text[16] == ':' && (len(text) < 19 || !isDigits(text[17:19])) {
		return false
	}
	return !strings.ContainsRune(text, ',')
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Calendar fixes the reference zone for day comparisons.
type Calendar struct {
	loc *time.Location
}

// Local is the host-zone calendar.
func Local() Calendar { return Calendar{loc: time.Local} }

// In returns a calendar in loc. A nil loc means the host zone.
func In(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

// Named loads an IANA zone by name. An empty name is the host zone.
func Named(name string) (Calendar, error) {
	if strings.TrimSpace(name) == "" {
		return Local(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return In(loc), nil
}

// Location returns the reference zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// SameDay reports whether a and b share year and day-of-year in c's zone.
// It is reflexive, symmetric and ignores sub-day components.
func (c Calendar) SameDay(a, b time.Time) bool {
	la, lb := a.In(c.Location()), b.In(c.Location())
	return la.Year() == lb.Year() && la.YearDay() == lb.YearDay()
}

// StartOfDay returns midnight of t's calendar day in c's zone.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	l := t.In(c.Location())
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.Location())
}

// ParseDay parses a "2006-01-02" date as midnight in c's zone. Used for
// user-entered filter dates, never for instance timestamps.
func (c Calendar) ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), c.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// SameCalendarDay compares a and b in the host's local zone.
func SameCalendarDay(a, b time.Time) bool {
	return Local().SameDay(a, b)
}

// FromMillis converts epoch milliseconds (the persisted preference format)
// into an instant.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
