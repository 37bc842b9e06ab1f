package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ingest/internal/config"
	"ingest/internal/metrics"
	"ingest/internal/metrics/datadog"
	"ingest/internal/metrics/prompush"

	// register all backends with the storage factory.
	// flags specify which to use but we build in support for all of them.
	_ "ingest/internal/storage/all"
)

// main is the entry point for the ingest binary. It parses flags, optionally
// initializes a metrics backend, and executes one run to completion.
func main() {
	var o config.Options
	var validate bool

	flag.StringVar(&o.Input, "input", config.DefaultInput, "input path or http(s) URL of the delimited source")
	flag.StringVar(&o.Output, "output", config.DefaultOutput, "destination table identifier")
	flag.StringVar(&o.Project, "project", "", "project identifier (required)")
	flag.StringVar(&o.JobName, "jobname", "", "job name used in logs and metrics labels (required)")
	flag.StringVar(&o.StagingLocation, "staging_location", "", "staging location identifier (required)")
	flag.StringVar(&o.TempLocation, "temp_location", "", "temp location identifier (required)")
	flag.StringVar(&o.Runner, "runner", config.DefaultRunner, "execution backend")
	flag.StringVar(&o.Schema, "schema", config.DefaultSchema, "sink schema as name:TYPE,name:TYPE,...")
	flag.StringVar(&o.HashColumn, "hash_column", config.DefaultHashColumn, "derived digest column; empty disables derivation")
	flag.StringVar(&o.HashSource, "hash_source", config.DefaultHashSource, "column the digest is computed from")
	flag.StringVar(&o.HashAlg, "hash_alg", config.DefaultHashAlg, "digest algorithm (sha256, xxh3)")
	flag.IntVar(&o.SkipHeader, "skip_header", config.DefaultSkipHeader, "number of leading input lines to discard")
	flag.IntVar(&o.Parallelism, "parallelism", config.DefaultParallelism, "number of concurrent parse workers")
	flag.StringVar(&o.Sink, "sink", config.DefaultSink, "storage backend (sqlite, postgres, mysql, mssql)")
	flag.StringVar(&o.DSN, "dsn", "", "sink connection string (falls back to INGEST_DSN)")
	flag.StringVar(&o.MetricsBackend, "metrics-backend", "none", "metrics backend (none, pushgateway, datadog)")
	flag.StringVar(&o.PushgatewayURL, "pushgateway-url", "", "Pushgateway base URL")
	flag.StringVar(&o.StatsdAddr, "statsd-addr", "", "DogStatsD agent address")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")

	flag.Parse()

	o.ApplyEnv()

	issues := config.Validate(o)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid")
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid")
		os.Exit(0)
	}

	initMetrics(o)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()
	start := time.Now()

	log.Printf("run: project=%s job=%s input=%s output=%s runner=%s",
		o.Project, o.JobName, o.Input, o.Output, o.Runner)

	stats, err := runPipeline(ctx, o)
	metrics.RecordStage(o.JobName, "run", err, time.Since(start))

	if err != nil {
		log.Printf("run aborted after %s: %v", time.Since(start).Truncate(time.Millisecond), err)
		exit(1)
	}
	if stats.majorityDropped() {
		log.Printf("run completed but lost %d of %d records; refusing success",
			stats.lost(), stats.read.Load())
		exit(1)
	}

	log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
}

// initMetrics installs the selected metrics backend. Failures fall back to
// the nop backend; a run never aborts because metrics are unavailable.
func initMetrics(o config.Options) {
	switch o.MetricsBackend {
	case "pushgateway":
		b, err := prompush.NewBackend(o.JobName, o.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: pushgateway init failed: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=pushgateway url=%s job=%s", o.PushgatewayURL, o.JobName)
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       o.StatsdAddr,
			Namespace:  "ingest.",
			GlobalTags: []string{"job:" + o.JobName, "project:" + o.Project},
		})
		if err != nil {
			log.Printf("metrics: datadog init failed: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%s job=%s", o.StatsdAddr, o.JobName)
		metrics.SetBackend(b)
	}
}

// exit runs deferred metrics flushing before terminating with the given code.
func exit(code int) {
	if err := metrics.Flush(); err != nil {
		log.Printf("metrics: flush error: %v", err)
	}
	os.Exit(code)
}
