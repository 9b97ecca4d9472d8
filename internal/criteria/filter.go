package criteria

import (
	"go.uber.org/zap"

	"formsummary/internal/datenorm"
	"formsummary/internal/instances"
	"formsummary/internal/xmlfield"
	"formsummary/pkg/optional"
)

// DefaultDateField holds the finalization timestamp in Collect instances.
const DefaultDateField = "end"

// Filter evaluates Criteria against instances.
//
// The instance document is read at most once per Matches call; an unreadable
// document makes every field lookup absent, so it fails any date or
// categorical constraint but still passes a form-only (or empty) criteria.
type Filter struct {
	Calendar  datenorm.Calendar
	DateField string
	Logger    *zap.Logger

	// load is a test seam; nil means xmlfield.Load.
	load func(path string) (*xmlfield.Document, error)
}

// NewFilter returns a Filter comparing days in cal on the "end" field.
func NewFilter(cal datenorm.Calendar, logger *zap.Logger) Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Filter{Calendar: cal, DateField: DefaultDateField, Logger: logger}
}

// Matches reports whether in satisfies every non-null constraint of c, using
// the host calendar and the "end" field.
func Matches(in instances.Instance, c Criteria) bool {
	return NewFilter(datenorm.Local(), nil).Matches(in, c)
}

// Matches reports whether in satisfies every non-null constraint of c.
func (f Filter) Matches(in instances.Instance, c Criteria) bool {
	if id, ok := c.formID.Get(); ok && in.FormID != id {
		return false
	}
	if !c.needsDocument() {
		return true
	}

	lookup := f.fieldLookup(in.FilePath)

	if want, ok := c.date.Get(); ok {
		end := optional.FlatMap(lookup(f.dateField()), datenorm.ParseInstant)
		got, ok := end.Get()
		if !ok || !f.Calendar.SameDay(got, want) {
			return false
		}
	}

	for _, fm := range c.fields {
		if !optional.Equal(lookup(fm.Name), fm.Value) {
			return false
		}
	}
	return true
}

// Select returns the working set: candidates in a finalized status that
// match c, in input order. The result never aliases candidates.
func (f Filter) Select(candidates []instances.Instance, c Criteria) []instances.Instance {
	out := make([]instances.Instance, 0, len(candidates))
	for _, in := range candidates {
		if !in.Status.IsFinalized() {
			continue
		}
		if f.Matches(in, c) {
			out = append(out, in)
		}
	}
	return out
}

func (f Filter) dateField() string {
	if f.DateField == "" {
		return DefaultDateField
	}
	return f.DateField
}

// fieldLookup parses the document lazily and at most once.
func (f Filter) fieldLookup(path string) func(name string) optional.Value[string] {
	load := f.load
	if load == nil {
		load = xmlfield.Load
	}

	var (
		doc    *xmlfield.Document
		loaded bool
	)
	return func(name string) optional.Value[string] {
		if !loaded {
			loaded = true
			d, err := load(path)
			if err != nil {
				if f.Logger != nil {
					f.Logger.Debug("instance unreadable; fields absent", zap.String("path", path), zap.Error(err))
				}
			} else {
				doc = d
			}
		}
		if doc == nil {
			return optional.None[string]()
		}
		return doc.Field(name)
	}
}
