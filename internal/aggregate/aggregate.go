// Package aggregate computes the numeric total and the distinct-value count
// over a working set.
//
// Values that are absent, empty or not decimal numbers contribute nothing.
// A record whose document cannot be read still counts as a record.
package aggregate

import (
	"math"
	"strconv"
	"strings"

	"formsummary/internal/instances"
	"formsummary/internal/xmlfield"
	"formsummary/pkg/optional"
)

// Result is the outcome of one summarisation pass.
type Result struct {
	RecordCount   int
	Sum           float64
	DistinctCount int
}

// ParseDecimal parses a plain decimal number ("100", "-2.5", "1e3").
// Hexadecimal forms, infinities and NaN are rejected.
func ParseDecimal(s string) optional.Value[float64] {
	s = strings.TrimSpace(s)
	if s == "" || isHex(s) {
		return optional.None[float64]()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return optional.None[float64]()
	}
	return optional.Some(v)
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// SumField adds up every record's decimal value for field. An empty set sums
// to 0.
func SumField(records []instances.Instance, field string) float64 {
	var total float64
	for _, r := range records {
		if v, ok := optional.FlatMap(xmlfield.ExtractField(r.FilePath, field), ParseDecimal).Get(); ok {
			total += v
		}
	}
	return total
}

// DistinctValues returns the set of non-empty values of field across records.
func DistinctValues(records []instances.Instance, field string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, r := range records {
		if v, ok := xmlfield.ExtractField(r.FilePath, field).Get(); ok && v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

// Summariser reads each document once and feeds both aggregations from it.
type Summariser struct {
	SumField      string
	DistinctField string
}

// Summarise returns the record count, the total of SumField and the number
// of distinct non-empty DistinctField values. The result equals calling
// SumField and DistinctValues separately.
func (s Summariser) Summarise(records []instances.Instance) Result {
	res := Result{RecordCount: len(records)}
	seen := make(map[string]struct{})
	for _, r := range records {
		doc, err := xmlfield.Load(r.FilePath)
		if err != nil {
			continue
		}
		if v, ok := optional.FlatMap(doc.Field(s.SumField), ParseDecimal).Get(); ok {
			res.Sum += v
		}
		if v, ok := doc.Field(s.DistinctField).Get(); ok && v != "" {
			seen[v] = struct{}{}
		}
	}
	res.DistinctCount = len(seen)
	return res
}

// Summarise is Summariser{SumField: sum, DistinctField: distinct}.Summarise.
func Summarise(records []instances.Instance, sum, distinct string) Result {
	return Summariser{SumField: sum, DistinctField: distinct}.Summarise(records)
}
