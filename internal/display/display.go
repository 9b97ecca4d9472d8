// Package display renders totals and dates for people.
package display

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"formsummary/internal/datenorm"
)

// Layouts used by the summary and list views.
const (
	DayLayout    = "02 Jan 2006"
	MinuteLayout = "2006-01-02 15:04"
)

// Printer formats numbers in a language and times in a calendar's zone.
type Printer struct {
	tag language.Tag
	p   *message.Printer
	loc *time.Location
}

// New returns a Printer for the BCP 47 tag lang. An invalid or empty tag
// falls back to language.Und, which renders digits without grouping rules
// of any particular locale.
func New(lang string, cal datenorm.Calendar) Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.Und
	}
	return Printer{tag: tag, p: message.NewPrinter(tag), loc: cal.Location()}
}

// Language is the tag in use.
func (pr Printer) Language() language.Tag { return pr.tag }

// Amount renders v as a grouped integer, truncated toward zero.
func (pr Printer) Amount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return pr.p.Sprintf("%d", int64(v))
}

// Count renders n with grouping.
func (pr Printer) Count(n int) string {
	return pr.p.Sprintf("%d", n)
}

// Day renders t as "dd Mon yyyy" in the calendar zone.
func (pr Printer) Day(t time.Time) string {
	return t.In(pr.loc).Format(DayLayout)
}

// Minute renders t as "yyyy-MM-dd HH:mm" in the calendar zone.
func (pr Printer) Minute(t time.Time) string {
	return t.In(pr.loc).Format(MinuteLayout)
}
