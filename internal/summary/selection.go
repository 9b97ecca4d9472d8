package summary

import (
	"time"

	"formsummary/internal/criteria"
	"formsummary/internal/datenorm"
	"formsummary/internal/instances"
	"formsummary/pkg/optional"
)

// Saved is the caller's persisted selection. Absent fields fall back to the
// first available form and today.
type Saved struct {
	FormID     optional.Value[string]
	DateMillis optional.Value[int64]
}

// Selection is a resolved form and day.
type Selection struct {
	FormID optional.Value[string]
	Date   time.Time
}

// Criteria turns the selection into filter criteria.
func (s Selection) Criteria() criteria.Criteria {
	c := criteria.New().WithDate(s.Date)
	if id, ok := s.FormID.Get(); ok {
		c = c.WithFormID(id)
	}
	return c
}

// ResolveSelection applies the defaults: the saved form or else the first of
// forms (none when forms is empty); the saved day or else the start of today
// in cal.
func ResolveSelection(saved Saved, forms []instances.FormPair, now time.Time, cal datenorm.Calendar) Selection {
	sel := Selection{FormID: saved.FormID}
	if !sel.FormID.Present() && len(forms) > 0 {
		sel.FormID = optional.Some(forms[0].FormID)
	}

	day := now
	if ms, ok := saved.DateMillis.Get(); ok {
		day = datenorm.FromMillis(ms)
	}
	sel.Date = cal.StartOfDay(day)
	return sel
}
