// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the ingestion pipeline.
//
// The package exposes a narrow Backend interface focused on counters and
// duration observations, with a global pluggable backend that defaults to a
// no-op implementation. Pipeline code can therefore record metrics
// unconditionally; whether anything leaves the process depends on which
// backend (Pushgateway, Datadog) the CLI installed. The pattern mirrors the
// storage factory: concrete systems stay isolated in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveDuration records a duration-style value.
	ObserveDuration(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)      {}
func (nopBackend) ObserveDuration(string, float64, Labels) {}
func (nopBackend) Flush() error                            { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error { return backend.Flush() }

// RecordStage measures one pipeline stage: success/failure count plus
// duration.
func RecordStage(job, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "stage": stage, "status": status}
	backend.IncCounter("ingest_stage_total", 1, lbls)
	backend.ObserveDuration("ingest_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRecords increments a record-level counter for the given job and kind.
//
// Kinds mirror the run summary fields:
//   - "read"
//   - "parsed"
//   - "parse_errors"
//   - "written"
//   - "schema_mismatch"
//   - "dropped"
func RecordRecords(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_records_total", float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches increments the flushed-batch counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_batches_total", float64(delta), Labels{"job": job})
}
