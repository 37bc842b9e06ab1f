package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"ingest/internal/storage"
)

func testConfig(t *testing.T) storage.Config {
	t.Helper()
	return storage.Config{
		Kind:    "sqlite",
		DSN:     filepath.Join(t.TempDir(), "ingest.db"),
		Table:   "funding.usa_names",
		Columns: []string{"state", "gender", "year"},
		Create:  storage.CreateIfAbsent,
		Write:   storage.TruncateThenWrite,
	}
}

func runOnce(t *testing.T, cfg storage.Config, rows [][]any) {
	t.Helper()
	ctx := context.Background()

	repo, err := NewRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer repo.Close()

	if err := repo.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	n, err := repo.CopyFrom(ctx, cfg.Columns, rows)
	if err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if got, want := n, int64(len(rows)); got != want {
		t.Fatalf("inserted = %d, want %d", got, want)
	}
	if err := repo.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func tableRows(t *testing.T, cfg storage.Config) [][]string {
	t.Helper()
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	rs, err := db.Query(`SELECT state, gender, year FROM "funding.usa_names" ORDER BY state`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rs.Close()

	var out [][]string
	for rs.Next() {
		var a, b, c sql.NullString
		if err := rs.Scan(&a, &b, &c); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, []string{a.String, b.String, c.String})
	}
	return out
}

func TestRunTransaction_CreatesAndWrites(t *testing.T) {
	cfg := testConfig(t)
	runOnce(t, cfg, [][]any{
		{"KS", "F", "1923"},
		{"NE", "M", "1940"},
	})

	rows := tableRows(t, cfg)
	if got, want := len(rows), 2; got != want {
		t.Fatalf("row count = %d, want %d", got, want)
	}
	if rows[0][0] != "KS" || rows[1][0] != "NE" {
		t.Fatalf("rows = %v", rows)
	}
}

// Running the pipeline twice leaves only the second run's rows.
func TestRunTransaction_TruncateIdempotence(t *testing.T) {
	cfg := testConfig(t)
	runOnce(t, cfg, [][]any{{"AA", "F", "1900"}, {"BB", "M", "1901"}})
	runOnce(t, cfg, [][]any{{"KS", "F", "1923"}})

	rows := tableRows(t, cfg)
	if got, want := len(rows), 1; got != want {
		t.Fatalf("row count after second run = %d, want %d", got, want)
	}
	if rows[0][0] != "KS" {
		t.Fatalf("rows = %v, want only second run's row", rows)
	}
}

// Close without Commit must leave prior contents intact.
func TestRunTransaction_RollbackPreservesOldRows(t *testing.T) {
	cfg := testConfig(t)
	runOnce(t, cfg, [][]any{{"KS", "F", "1923"}})

	ctx := context.Background()
	repo, err := NewRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	if err := repo.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := repo.CopyFrom(ctx, cfg.Columns, [][]any{{"XX", "M", "2000"}}); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	repo.Close() // no Commit: aborted run

	rows := tableRows(t, cfg)
	if got, want := len(rows), 1; got != want {
		t.Fatalf("row count after aborted run = %d, want %d", got, want)
	}
	if rows[0][0] != "KS" {
		t.Fatalf("rows = %v, want first run's row preserved", rows)
	}
}

func TestCopyFrom_RowWidthMismatch(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	repo, err := NewRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer repo.Close()

	if err := repo.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, err = repo.CopyFrom(ctx, cfg.Columns, [][]any{{"KS", "F"}})
	if !storage.IsSchemaMismatch(err) {
		t.Fatalf("err = %v, want schema mismatch", err)
	}
}

// A batch that fails on its second row must leave no trace of the first, so
// replaying the batch row by row cannot deliver any row twice.
func TestCopyFrom_MidBatchFailureLeavesNoPartialRows(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	repo, err := NewRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer repo.Close()

	if err := repo.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	batch := [][]any{
		{"KS", "F", "1923"},
		{"NE", "M"}, // short row fails mid-batch
		{"TX", "F", "1940"},
	}
	if _, err := repo.CopyFrom(ctx, cfg.Columns, batch); !storage.IsSchemaMismatch(err) {
		t.Fatalf("err = %v, want schema mismatch", err)
	}

	// Replay row by row, skipping the rejected one.
	var written int64
	for _, row := range batch {
		n, err := repo.CopyFrom(ctx, cfg.Columns, [][]any{row})
		if err != nil {
			if !storage.IsSchemaMismatch(err) {
				t.Fatalf("row replay: %v", err)
			}
			continue
		}
		written += n
	}
	if got, want := written, int64(2); got != want {
		t.Fatalf("written = %d, want %d", got, want)
	}
	if err := repo.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rows := tableRows(t, cfg)
	if got, want := len(rows), 2; got != want {
		t.Fatalf("row count = %d, want %d (no duplicates from the failed batch)", got, want)
	}
	if rows[0][0] != "KS" || rows[1][0] != "TX" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestBuildCreateTableSQL_QuotesDottedName(t *testing.T) {
	got, err := BuildCreateTableSQL("funding.usa_names", []string{"a", "b"})
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	if !strings.Contains(got, `"funding.usa_names"`) {
		t.Fatalf("dotted table name not quoted whole: %s", got)
	}
}
