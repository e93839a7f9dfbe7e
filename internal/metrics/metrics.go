// Package metrics is the small facade the transfer and discovery code report
// through. Backends (see metrics/datadog) implement Backend; when none is
// installed every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by the backends.
const (
	DocumentsTotal       = "mongrel_documents_total"
	RowsTotal            = "mongrel_rows_total"
	InsertedTotal        = "mongrel_inserted_total"
	FlushesTotal         = "mongrel_flushes_total"
	FlushDurationSeconds = "mongrel_flush_duration_seconds"
	StageTotal           = "mongrel_stage_total"
	StageDurationSeconds = "mongrel_stage_duration_seconds"
)

// Labels are metric dimensions, e.g. {"table": "music.tracks"}.
type Labels map[string]string

// Backend receives counters and histogram observations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide. A nil b restores the no-op backend.
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

// Flush forwards to the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordStage counts one run of stage with its outcome and duration. status is
// "ok" when err is nil and "error" otherwise.
func RecordStage(stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"stage": stage, "status": status}
	IncCounter(StageTotal, 1, l)
	ObserveHistogram(StageDurationSeconds, time.Since(start).Seconds(), l)
}
