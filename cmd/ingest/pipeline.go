// This file contains the streaming execution logic for one ingestion run.
//
// It wires line reading, positional parsing, and batched loading into the
// configured storage backend. The CLI layer stays thin: it depends only on
// storage-agnostic interfaces and never imports database drivers directly.
package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ingest/internal/config"
	"ingest/internal/datasource/file"
	"ingest/internal/datasource/httpds"
	"ingest/internal/hash"
	"ingest/internal/metrics"
	"ingest/internal/parser"
	"ingest/internal/reader"
	"ingest/internal/schema"
	"ingest/internal/storage"
)

const (
	errSamples   = 3
	retryBackoff = 250 * time.Millisecond
)

// counters holds cross-goroutine statistics for a run.
//
// All fields are updated atomically by the pipeline stages.
type counters struct {
	read        atomic.Int64 // data lines handed to parse workers
	parsed      atomic.Int64 // records that parsed successfully
	parseErrors atomic.Int64 // lines the parser rejected
	written     atomic.Int64 // records flushed to the sink
	batches     atomic.Int64 // sink batches flushed
	mismatched  atomic.Int64 // records the sink rejected as schema mismatches
	dropped     atomic.Int64 // records lost to exhausted write retries
}

// lost returns the number of records that entered the run but never
// reached the sink.
func (c *counters) lost() int64 {
	return c.parseErrors.Load() + c.mismatched.Load() + c.dropped.Load()
}

// majorityDropped reports whether the run lost more records than it wrote.
// Such a run must not exit successfully.
func (c *counters) majorityDropped() bool {
	return c.lost() > c.written.Load()
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}

	openSourceFn = openSource

	sleepFn = time.Sleep
)

// openSource selects the datasource by input shape: http(s) URLs stream over
// the network with retry, everything else is treated as a local path.
func openSource(o config.Options) reader.Source {
	if strings.HasPrefix(o.Input, "http://") || strings.HasPrefix(o.Input, "https://") {
		return httpds.New(o.Input, httpds.Config{})
	}
	return file.NewLocal(o.Input)
}

// buildSchema parses the sink schema string and, when the declared columns
// include the configured hash column, binds it as derived from the hash
// source. A schema without the hash column disables derivation entirely, so
// alternate column sets need no extra flags.
func buildSchema(o config.Options) (*schema.Schema, hash.Func, error) {
	sch, err := schema.Parse(o.Schema)
	if err != nil {
		return nil, nil, err
	}
	if o.HashColumn == "" || sch.Index(o.HashColumn) < 0 {
		return sch, nil, nil
	}
	if err := sch.BindDerived(o.HashColumn, o.HashSource); err != nil {
		return nil, nil, err
	}
	digest, err := hash.ByName(o.HashAlg)
	if err != nil {
		return nil, nil, err
	}
	return sch, digest, nil
}

// runPipeline executes a full read → parse → load run against the configured
// sink and returns the final statistics.
//
// Bad lines are dropped before the database (fail-soft semantics) and
// aggregated for the end-of-run summary. A fatal sink error cancels the
// pipeline and rolls the run's transaction back, leaving any pre-existing
// table contents untouched.
//
// Concurrency model:
//
//	Reader (1) → bounded line channel
//	     → N parse workers (pooled records)
//	     → bounded record channel
//	     → Loader (1; batches, bounded retries, run transaction)
//
// Back-pressure is enforced via the bounded channels so peak memory stays
// around O(batchSize + bufferSize).
func runPipeline(ctx context.Context, o config.Options) (*counters, error) {
	stats := &counters{}

	sch, digest, err := buildSchema(o)
	if err != nil {
		return stats, err
	}
	p, err := parser.New(sch, digest)
	if err != nil {
		return stats, err
	}

	log.Printf("runtime: workers=%d batch=%d buffer=%d retries=%d sink=%s table=%s",
		o.Parallelism, o.BatchSize, o.ChannelBuffer, o.WriteRetries, o.Sink, o.Output)

	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:    o.Sink,
		DSN:     o.DSN,
		Table:   o.Output,
		Columns: sch.Names(),
		Create:  storage.CreateIfAbsent,
		Write:   storage.TruncateThenWrite,
	})
	if err != nil {
		return stats, fmt.Errorf("init repo: %w", err)
	}
	defer repo.Close()

	// The whole run writes inside one sink transaction: Begin applies the
	// create and truncate dispositions, Commit publishes the run's rows
	// together with the truncate.
	if err := repo.Begin(ctx); err != nil {
		return stats, fmt.Errorf("begin run: %w", err)
	}

	parseAgg := newErrAgg(errSamples)

	lineCh := make(chan reader.Line, o.ChannelBuffer)
	recCh := make(chan *parser.Record, o.ChannelBuffer)

	g, gctx := errgroup.WithContext(ctx)

	// Reader: source → raw lines.
	g.Go(func() error {
		defer close(lineCh)
		start := time.Now()
		err := reader.StreamLines(gctx, openSourceFn(o), o.SkipHeader, lineCh)
		metrics.RecordStage(o.JobName, "read", err, time.Since(start))
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		return nil
	})

	// Parse workers: raw lines → pooled records. Parse failures are
	// fail-soft, so the workers run outside the errgroup.
	var wgParsers sync.WaitGroup
	wgParsers.Add(o.Parallelism)
	for i := 0; i < o.Parallelism; i++ {
		go func() {
			defer wgParsers.Done()
			for ln := range lineCh {
				stats.read.Add(1)
				rec, err := p.Parse(ln.Text, ln.Number)
				if err != nil {
					stats.parseErrors.Add(1)
					parseAgg.add(err.Error())
					continue
				}
				stats.parsed.Add(1)
				select {
				case recCh <- rec:
				case <-gctx.Done():
					rec.Free()
					return
				}
			}
		}()
	}
	go func() {
		wgParsers.Wait()
		close(recCh)
	}()

	// Loader: records → batched sink writes.
	g.Go(func() error {
		return runLoader(gctx, loaderConfig{
			recCh:         recCh,
			repo:          repo,
			columns:       sch.Names(),
			batchSize:     o.BatchSize,
			retries:       o.WriteRetries,
			mismatchLimit: o.MismatchLimit,
			stats:         stats,
			job:           o.JobName,
		})
	})

	runErr := g.Wait()

	if runErr == nil {
		if err := repo.Commit(ctx); err != nil {
			runErr = fmt.Errorf("commit run: %w", err)
		}
	}

	metrics.RecordRecords(o.JobName, "parsed", stats.parsed.Load())
	metrics.RecordRecords(o.JobName, "parse_errors", stats.parseErrors.Load())

	logParseSummary(parseAgg)
	logGlobalSummary(stats, runErr)

	return stats, runErr
}

// loaderConfig contains all dependencies required by the loader.
type loaderConfig struct {
	recCh         <-chan *parser.Record
	repo          storage.Repository
	columns       []string
	batchSize     int
	retries       int
	mismatchLimit int
	stats         *counters
	job           string
}

// runLoader consumes parsed records, batches them, and writes batches through
// the repository. It always frees records (whether due to success,
// cancellation, or errors). A fatal sink error is returned to the errgroup,
// which cancels the upstream stages; the loader then drains and frees the
// remaining records to avoid leaks or deadlocks.
func runLoader(ctx context.Context, cfg loaderConfig) error {
	start := time.Now()

	// bVals holds the values for the write; bRecs tracks records for Free().
	bVals := make([][]any, 0, cfg.batchSize)
	bRecs := make([]*parser.Record, 0, cfg.batchSize)

	drain := func() {
		for r := range cfg.recCh {
			r.Free()
		}
	}

	flush := func() error {
		if len(bVals) == 0 {
			return nil
		}
		flushStart := time.Now()
		err := writeBatch(ctx, cfg, bVals)
		metrics.RecordStage(cfg.job, "write", err, time.Since(flushStart))

		for _, r := range bRecs {
			r.Free()
		}
		bVals = bVals[:0]
		bRecs = bRecs[:0]

		if err == nil {
			total := cfg.stats.written.Load()
			elapsed := time.Since(start)
			log.Printf("batch=%d total_written=%d elapsed=%s",
				cfg.stats.batches.Load(), total, elapsed.Truncate(time.Millisecond))
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			for _, r := range bRecs {
				r.Free()
			}
			drain()
			return ctx.Err()

		case r, ok := <-cfg.recCh:
			if !ok {
				return flush()
			}
			bVals = append(bVals, r.V)
			bRecs = append(bRecs, r)
			if len(bVals) >= cfg.batchSize {
				if err := flush(); err != nil {
					drain()
					return err
				}
			}
		}
	}
}

// writeBatch writes one batch with bounded retries and backoff.
//
// A schema mismatch switches to the row-by-row salvage path so one bad
// record does not take down its whole batch. When retries are exhausted the
// batch is counted dropped and the run continues, unless every attempt
// failed with a transient connection-class error; sustained unavailability
// is fatal.
func writeBatch(ctx context.Context, cfg loaderConfig, vals [][]any) error {
	var lastErr error
	allTransient := true

	for attempt := 0; attempt <= cfg.retries; attempt++ {
		if attempt > 0 {
			sleepFn(retryBackoff << (attempt - 1))
		}

		n, err := cfg.repo.CopyFrom(ctx, cfg.columns, vals)
		if err == nil {
			cfg.stats.written.Add(n)
			cfg.stats.batches.Add(1)
			metrics.RecordRecords(cfg.job, "written", n)
			metrics.RecordBatches(cfg.job, 1)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if storage.IsSchemaMismatch(err) {
			return salvageBatch(ctx, cfg, vals)
		}
		if !storage.IsTransient(err) {
			allTransient = false
		}
		lastErr = err
		log.Printf("loader: batch write failed (attempt %d/%d, rows=%d): %v",
			attempt+1, cfg.retries+1, len(vals), err)
	}

	if allTransient {
		return fmt.Errorf("sink unavailable after %d attempts: %w", cfg.retries+1, lastErr)
	}
	cfg.stats.dropped.Add(int64(len(vals)))
	metrics.RecordRecords(cfg.job, "dropped", int64(len(vals)))
	log.Printf("loader: dropping batch of %d rows after %d attempts: %v",
		len(vals), cfg.retries+1, lastErr)
	return nil
}

// salvageBatch writes a mismatched batch row by row, counting each rejected
// record. Crossing the configured mismatch limit aborts the run.
func salvageBatch(ctx context.Context, cfg loaderConfig, vals [][]any) error {
	var written int64
	for _, row := range vals {
		n, err := cfg.repo.CopyFrom(ctx, cfg.columns, [][]any{row})
		if err == nil {
			written += n
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if storage.IsSchemaMismatch(err) {
			m := cfg.stats.mismatched.Add(1)
			metrics.RecordRecords(cfg.job, "mismatched", 1)
			if cfg.mismatchLimit > 0 && m > int64(cfg.mismatchLimit) {
				return fmt.Errorf("schema mismatches exceeded limit %d: %w", cfg.mismatchLimit, err)
			}
			continue
		}
		cfg.stats.dropped.Add(1)
		metrics.RecordRecords(cfg.job, "dropped", 1)
		log.Printf("loader: dropping row during salvage: %v", err)
	}

	if written > 0 {
		cfg.stats.written.Add(written)
		cfg.stats.batches.Add(1)
		metrics.RecordRecords(cfg.job, "written", written)
		metrics.RecordBatches(cfg.job, 1)
	}
	return nil
}

// logParseSummary prints aggregated parse errors. Only the first N unique
// messages (per errAgg) are shown.
func logParseSummary(agg *errAgg) {
	if agg.count == 0 {
		return
	}
	log.Printf("parse errors: %d (showing first %d)", agg.count, len(agg.first))
	for i, s := range agg.first {
		log.Printf("  #%03d: %s", i+1, s)
	}
}

// logGlobalSummary prints final aggregated statistics for the run.
//
// Invariants for data lines (excluding skipped headers) are:
//
//	read == parsed + parse_errors
//	parsed == written + mismatched + dropped
//
// The second only holds for completed runs; an aborted run loses in-flight
// records, which the accounting warning makes visible.
func logGlobalSummary(c *counters, runErr error) {
	read := c.read.Load()
	parsed := c.parsed.Load()
	parseErrs := c.parseErrors.Load()
	written := c.written.Load()
	mismatched := c.mismatched.Load()
	dropped := c.dropped.Load()
	batches := c.batches.Load()

	log.Printf(
		"summary: read=%d parsed=%d parse_errors=%d written=%d mismatched=%d dropped=%d batches=%d",
		read, parsed, parseErrs, written, mismatched, dropped, batches,
	)

	if runErr == nil {
		accounted := parseErrs + written + mismatched + dropped
		if accounted != read {
			log.Printf("WARNING: record accounting mismatch: read=%d accounted=%d (delta=%d)",
				read, accounted, read-accounted)
		}
	}
}

// errAgg aggregates error messages, keeping the first N for the summary.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
