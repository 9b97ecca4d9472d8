// Package criteria selects the working set: the finalized instances that
// satisfy every non-null filter constraint.
package criteria

import (
	"sort"
	"time"

	"formsummary/pkg/optional"
)

// FieldMatch is one categorical constraint: the named field must equal
// Value exactly (case-sensitive, after the extractor's trim).
type FieldMatch struct {
	Name  string
	Value string
}

// Criteria is an immutable set of optional constraints. The zero value
// constrains nothing. The With* methods return modified copies.
type Criteria struct {
	date   optional.Value[time.Time]
	formID optional.Value[string]
	fields []FieldMatch // sorted by Name, unique names
}

// New returns criteria with no constraints.
func New() Criteria { return Criteria{} }

// WithDate constrains finalization to t's calendar day.
func (c Criteria) WithDate(t time.Time) Criteria {
	c.date = optional.Some(t)
	return c
}

// WithFormID constrains the instance's form id.
func (c Criteria) WithFormID(id string) Criteria {
	c.formID = optional.Some(id)
	return c
}

// WithField adds or replaces a categorical constraint.
func (c Criteria) WithField(name, value string) Criteria {
	next := make([]FieldMatch, 0, len(c.fields)+1)
	for _, f := range c.fields {
		if f.Name != name {
			next = append(next, f)
		}
	}
	next = append(next, FieldMatch{Name: name, Value: value})
	sort.Slice(next, func(i, j int) bool { return next[i].Name < next[j].Name })
	c.fields = next
	return c
}

// WithFields adds every name -> value pair of m.
func (c Criteria) WithFields(m map[string]string) Criteria {
	for name, v := range m {
		c = c.WithField(name, v)
	}
	return c
}

// Date returns the date constraint.
func (c Criteria) Date() optional.Value[time.Time] { return c.date }

// FormID returns the form constraint.
func (c Criteria) FormID() optional.Value[string] { return c.formID }

// Fields returns a copy of the categorical constraints, sorted by name.
func (c Criteria) Fields() []FieldMatch {
	return append([]FieldMatch(nil), c.fields...)
}

// Field returns the constraint value for name, if any.
func (c Criteria) Field(name string) optional.Value[string] {
	for _, f := range c.fields {
		if f.Name == name {
			return optional.Some(f.Value)
		}
	}
	return optional.None[string]()
}

// IsEmpty reports whether no constraint is set.
func (c Criteria) IsEmpty() bool {
	return !c.date.Present() && !c.formID.Present() && len(c.fields) == 0
}

// needsDocument reports whether evaluating c requires reading the instance
// document.
func (c Criteria) needsDocument() bool {
	return c.date.Present() || len(c.fields) > 0
}
