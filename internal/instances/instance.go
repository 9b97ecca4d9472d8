// Package instances models form-submission records as exposed by an
// existing instance store, and provides a registry of store backends.
//
// The store is owned elsewhere; everything here is read-only.
package instances

import (
	"path/filepath"
	"sort"
	"strings"
)

// Status is an instance lifecycle status as persisted by the store.
type Status string

const (
	StatusIncomplete       Status = "incomplete"
	StatusComplete         Status = "complete"
	StatusSubmitted        Status = "submitted"
	StatusSubmissionFailed Status = "submissionFailed"
	StatusValid            Status = "valid"
	StatusInvalid          Status = "invalid"
)

// Finalized lists the statuses visible to the summarise pipeline. Instances
// in any other status are never returned by a store query made through
// QueryFinalized.
var Finalized = []Status{StatusComplete, StatusSubmitted, StatusSubmissionFailed}

// IsFinalized reports whether s is one of the Finalized statuses.
func (s Status) IsFinalized() bool {
	for _, f := range Finalized {
		if s == f {
			return true
		}
	}
	return false
}

// Instance is one form submission with an XML document on disk.
type Instance struct {
	ID          string
	FormID      string
	DisplayName string
	Status      Status
	FilePath    string
}

// BaseName returns the instance file name without directory or extension.
// Exports use it as the record identifier column.
func (i Instance) BaseName() string {
	base := filepath.Base(i.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FormPair is a (form id, display name) choice for form selection.
type FormPair struct {
	FormID      string
	DisplayName string
}

// FormPairs returns one pair per distinct form id (first occurrence wins),
// skipping instances with no form id, sorted by display name.
func FormPairs(list []Instance) []FormPair {
	seen := make(map[string]bool, len(list))
	out := make([]FormPair, 0, len(list))
	for _, in := range list {
		if in.FormID == "" || seen[in.FormID] {
			continue
		}
		seen[in.FormID] = true
		out = append(out, FormPair{FormID: in.FormID, DisplayName: in.DisplayName})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}
