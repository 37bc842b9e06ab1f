// This file adds a lightweight linter/validator for Options values. It
// performs static checks over a populated Options and returns a list of
// issues (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for an Options value.
//
// Path names the offending flag (e.g. "project", "hash_alg"). Message is
// human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue in the slice is SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of Options.
//
// It does not mutate the options. Callers decide whether warnings are
// fatal; errors always should be.
func Validate(o Options) []Issue {
	var issues []Issue

	required := []struct {
		path, val string
	}{
		{"input", o.Input},
		{"output", o.Output},
		{"project", o.Project},
		{"jobname", o.JobName},
		{"staging_location", o.StagingLocation},
		{"temp_location", o.TempLocation},
		{"schema", o.Schema},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     r.path,
				Message:  r.path + " must not be empty",
			})
		}
	}

	if o.Runner != "direct" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runner",
			Message:  fmt.Sprintf("unsupported runner %q; only \"direct\" is implemented", o.Runner),
		})
	}

	switch o.HashAlg {
	case "", "sha256", "xxh3":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "hash_alg",
			Message:  fmt.Sprintf("unknown hash algorithm %q; supported: sha256, xxh3", o.HashAlg),
		})
	}
	if o.HashColumn != "" && strings.TrimSpace(o.HashSource) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "hash_source",
			Message:  "hash_column is set but hash_source is empty",
		})
	}

	if o.SkipHeader < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "skip_header",
			Message:  "skip_header must not be negative",
		})
	}
	if o.Parallelism <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parallelism",
			Message:  "parallelism must be positive",
		})
	}

	knownSinks := map[string]struct{}{
		"sqlite":   {},
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
	}
	if _, ok := knownSinks[o.Sink]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink",
			Message:  fmt.Sprintf("unknown sink kind %q; ensure a matching backend is registered", o.Sink),
		})
	}
	if strings.TrimSpace(o.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "dsn",
			Message:  "dsn must not be empty; set --dsn or INGEST_DSN",
		})
	}

	switch o.MetricsBackend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(o.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "pushgateway-url",
				Message:  "metrics-backend=pushgateway requires --pushgateway-url",
			})
		}
	case "datadog":
		if strings.TrimSpace(o.StatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "statsd-addr",
				Message:  "metrics-backend=datadog requires --statsd-addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics-backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; supported: none, pushgateway, datadog", o.MetricsBackend),
		})
	}

	if o.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "batch_size",
			Message:  fmt.Sprintf("batch_size=%d; non-positive batch sizes may hurt throughput", o.BatchSize),
		})
	}
	if o.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "channel_buffer",
			Message:  "channel buffer must not be negative",
		})
	}
	if o.WriteRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "write_retries",
			Message:  "write retries must not be negative",
		})
	}

	return issues
}
