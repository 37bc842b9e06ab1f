// Package config defines the run configuration model for the ingest
// pipeline. It is intentionally small and dependency-free: cmd/ingest
// fills an Options value from flags and environment variables, validates
// it, and passes it through the program without ambient globals.
package config

import (
	"os"
	"strconv"
)

// Defaults for flag values and environment overrides.
const (
	DefaultInput      = "TechCrunchcontinentalUSA.csv"
	DefaultOutput     = "funding.usa_names"
	DefaultRunner     = "direct"
	DefaultSchema     = "hash_code:STRING,permalink:STRING,numEmps:STRING,category:STRING,city:STRING,state:STRING,fundedDate:STRING,raisedAmt:STRING,raisedCurrency:STRING,round:STRING"
	DefaultHashColumn = "hash_code"
	DefaultHashSource = "fundedDate"
	DefaultHashAlg    = "sha256"
	DefaultSink       = "sqlite"

	DefaultSkipHeader  = 1
	DefaultParallelism = 4

	DefaultBatchSize     = 500
	DefaultChannelBuffer = 1024
	DefaultWriteRetries  = 3
	DefaultMismatchLimit = 25
)

// Options is the complete, flat configuration of one pipeline run.
type Options struct {
	// Input is a local path or an http(s) URL to the delimited source.
	Input string

	// Output is the destination table identifier, passed to the sink as-is.
	Output string

	// Run identity. These are recorded in logs and metrics labels but do
	// not change pipeline behavior.
	Project         string
	JobName         string
	StagingLocation string
	TempLocation    string

	// Runner names the execution backend. Only "direct" is implemented.
	Runner string

	// Schema is the "name:TYPE,..." sink schema string.
	Schema string

	// Derived-column settings. HashColumn is computed from HashSource
	// using HashAlg; an empty HashColumn disables derivation.
	HashColumn string
	HashSource string
	HashAlg    string

	// SkipHeader is the number of leading input lines to discard.
	SkipHeader int

	// Parallelism is the number of concurrent parse workers.
	Parallelism int

	// Sink selects the storage backend ("sqlite", "postgres", "mysql",
	// "mssql"); DSN is its connection string.
	Sink string
	DSN  string

	// Metrics backend selection: "none", "pushgateway", or "datadog".
	MetricsBackend string
	PushgatewayURL string
	StatsdAddr     string

	// Runtime tuning, overridable from the environment.
	BatchSize     int
	ChannelBuffer int
	WriteRetries  int
	MismatchLimit int
}

// ApplyEnv fills DSN and runtime tuning fields from the environment when
// the corresponding flag was left at its zero or default value.
func (o *Options) ApplyEnv() {
	if o.DSN == "" {
		o.DSN = os.Getenv("INGEST_DSN")
	}
	o.BatchSize = pickInt(o.BatchSize, getenvInt("INGEST_BATCH_SIZE", DefaultBatchSize))
	o.ChannelBuffer = pickInt(o.ChannelBuffer, getenvInt("INGEST_CH_BUFFER", DefaultChannelBuffer))
	o.WriteRetries = pickInt(o.WriteRetries, getenvInt("INGEST_WRITE_RETRIES", DefaultWriteRetries))
	o.MismatchLimit = pickInt(o.MismatchLimit, getenvInt("INGEST_MISMATCH_LIMIT", DefaultMismatchLimit))
}

// getenvInt reads an int from the environment, returning def when unset
// or invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
