package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

// validOptions returns an Options value that passes Validate cleanly.
func validOptions() Options {
	return Options{
		Input:           "input.csv",
		Output:          "funding.usa_names",
		Project:         "proj",
		JobName:         "job",
		StagingLocation: "gs://bucket/staging",
		TempLocation:    "gs://bucket/temp",
		Runner:          "direct",
		Schema:          DefaultSchema,
		HashColumn:      DefaultHashColumn,
		HashSource:      DefaultHashSource,
		HashAlg:         DefaultHashAlg,
		SkipHeader:      1,
		Parallelism:     4,
		Sink:            "sqlite",
		DSN:             "out.db",
		MetricsBackend:  "none",
		BatchSize:       DefaultBatchSize,
		ChannelBuffer:   DefaultChannelBuffer,
		WriteRetries:    DefaultWriteRetries,
		MismatchLimit:   DefaultMismatchLimit,
	}
}

func TestValidate_ValidMinimal(t *testing.T) {
	issues := Validate(validOptions())
	if len(issues) != 0 {
		t.Fatalf("expected no issues for valid options; got: %+v", issues)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	for _, path := range []string{"project", "jobname", "staging_location", "temp_location"} {
		t.Run(path, func(t *testing.T) {
			o := validOptions()
			switch path {
			case "project":
				o.Project = ""
			case "jobname":
				o.JobName = ""
			case "staging_location":
				o.StagingLocation = ""
			case "temp_location":
				o.TempLocation = ""
			}
			issues := Validate(o)
			if !hasIssue(t, issues, SeverityError, path, "must not be empty") {
				t.Fatalf("expected SeverityError for %s; got issues: %+v", path, issues)
			}
		})
	}
}

func TestValidate_Runner(t *testing.T) {
	o := validOptions()
	o.Runner = "dataflow"
	issues := Validate(o)
	if !hasIssue(t, issues, SeverityError, "runner", "unsupported runner") {
		t.Fatalf("expected SeverityError for runner; got issues: %+v", issues)
	}
}

func TestValidate_HashSettings(t *testing.T) {
	o := validOptions()
	o.HashAlg = "md5"
	if issues := Validate(o); !hasIssue(t, issues, SeverityError, "hash_alg", "unknown hash algorithm") {
		t.Fatalf("expected hash_alg error; got: %+v", issues)
	}

	o = validOptions()
	o.HashSource = ""
	if issues := Validate(o); !hasIssue(t, issues, SeverityError, "hash_source", "hash_source is empty") {
		t.Fatalf("expected hash_source error; got: %+v", issues)
	}

	// Disabling derivation entirely is fine.
	o = validOptions()
	o.HashColumn = ""
	o.HashSource = ""
	if issues := Validate(o); len(issues) != 0 {
		t.Fatalf("expected no issues with derivation disabled; got: %+v", issues)
	}
}

func TestValidate_MetricsBackend(t *testing.T) {
	o := validOptions()
	o.MetricsBackend = "pushgateway"
	if issues := Validate(o); !hasIssue(t, issues, SeverityError, "pushgateway-url", "requires") {
		t.Fatalf("expected pushgateway-url error; got: %+v", issues)
	}

	o.PushgatewayURL = "http://pushgateway:9091"
	if issues := Validate(o); len(issues) != 0 {
		t.Fatalf("expected no issues with gateway URL set; got: %+v", issues)
	}

	o = validOptions()
	o.MetricsBackend = "graphite"
	if issues := Validate(o); !hasIssue(t, issues, SeverityError, "metrics-backend", "unknown metrics backend") {
		t.Fatalf("expected metrics-backend error; got: %+v", issues)
	}
}

func TestValidate_SinkAndDSN(t *testing.T) {
	o := validOptions()
	o.Sink = "bigquery"
	if issues := Validate(o); !hasIssue(t, issues, SeverityWarning, "sink", "unknown sink kind") {
		t.Fatalf("expected sink warning; got: %+v", issues)
	}

	o = validOptions()
	o.DSN = ""
	if issues := Validate(o); !hasIssue(t, issues, SeverityError, "dsn", "INGEST_DSN") {
		t.Fatalf("expected dsn error; got: %+v", issues)
	}
}

func TestValidate_Runtime(t *testing.T) {
	o := validOptions()
	o.Parallelism = 0
	if issues := Validate(o); !hasIssue(t, issues, SeverityError, "parallelism", "positive") {
		t.Fatalf("expected parallelism error; got: %+v", issues)
	}

	o = validOptions()
	o.SkipHeader = -1
	if issues := Validate(o); !hasIssue(t, issues, SeverityError, "skip_header", "negative") {
		t.Fatalf("expected skip_header error; got: %+v", issues)
	}

	o = validOptions()
	o.BatchSize = 0
	if issues := Validate(o); !hasIssue(t, issues, SeverityWarning, "batch_size", "throughput") {
		t.Fatalf("expected batch_size warning; got: %+v", issues)
	}
}

func TestHasErrors(t *testing.T) {
	if HasErrors(nil) {
		t.Fatal("HasErrors(nil) = true")
	}
	warn := []Issue{{Severity: SeverityWarning, Path: "x"}}
	if HasErrors(warn) {
		t.Fatal("warnings reported as errors")
	}
	if !HasErrors(append(warn, Issue{Severity: SeverityError, Path: "y"})) {
		t.Fatal("error not detected")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("INGEST_DSN", "env.db")
	t.Setenv("INGEST_BATCH_SIZE", "99")
	t.Setenv("INGEST_WRITE_RETRIES", "bogus")

	var o Options
	o.ApplyEnv()

	if got, want := o.DSN, "env.db"; got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
	if got, want := o.BatchSize, 99; got != want {
		t.Fatalf("BatchSize = %d, want %d", got, want)
	}
	if got, want := o.WriteRetries, DefaultWriteRetries; got != want {
		t.Fatalf("WriteRetries = %d, want default %d", got, want)
	}

	// Explicit flag values win over the environment.
	o = Options{DSN: "flag.db", BatchSize: 7}
	o.ApplyEnv()
	if got, want := o.DSN, "flag.db"; got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
	if got, want := o.BatchSize, 7; got != want {
		t.Fatalf("BatchSize = %d, want %d", got, want)
	}
}
