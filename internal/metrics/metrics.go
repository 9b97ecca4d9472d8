// Package metrics is the backend-neutral metrics facade. Pipeline code calls
// the package-level helpers; a binary installs a concrete backend once with
// SetBackend. The default backend discards everything.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StepTotal    = "formsummary_step_total"
	StepDuration = "formsummary_step_duration_seconds"
	RecordsTotal = "formsummary_records_total"
	ExportBytes  = "formsummary_export_bytes"
)

// Step statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusEmpty = "empty"
)

// Record kinds counted by RecordsTotal.
const (
	KindCandidate  = "candidate"
	KindSelected   = "selected"
	KindUnreadable = "unreadable"
	KindExported   = "exported"
)

// Export destinations.
const (
	DestDownload = "download"
	DestShare    = "share"
)

// Label keys.
const (
	LabelStep   = "step"
	LabelStatus = "status"
	LabelKind   = "kind"
	LabelDest   = "destination"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// flusher is implemented by backends that buffer.
type flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend if it buffers.
func Flush() error {
	if f, ok := current().(flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one run of step and observes its duration since start.
func RecordStep(step, status string, start time.Time) {
	if step == "" {
		step = "unknown"
	}
	l := Labels{LabelStep: step, LabelStatus: status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDuration, time.Since(start).Seconds(), l)
}

// RecordRecords counts n records of the given kind.
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{LabelKind: kind})
}

// RecordExport observes the size of one written CSV.
func RecordExport(destination string, bytes int) {
	ObserveHistogram(ExportBytes, float64(bytes), Labels{LabelDest: destination})
}
