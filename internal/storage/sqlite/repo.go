// Package sqlite implements the sink on SQLite via database/sql and the
// modernc.org/sqlite driver. SQLite has no bulk-load API, so batches become
// prepared single-row INSERTs inside the run transaction; the transaction
// also gives the truncate disposition its atomicity.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ingest/internal/storage"
)

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg storage.Config
	tx  *sql.Tx
}

// NewRepository opens a SQLite connection using the provided DSN, e.g.
// "file:ingest.db?cache=shared" or a bare filename, and pings it to fail fast
// on invalid DSNs.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db, cfg: cfg}, nil
}

// Begin opens the run transaction and applies the dispositions.
func (r *Repository) Begin(ctx context.Context) error {
	if r.tx != nil {
		return fmt.Errorf("sqlite: Begin called twice")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("sqlite: begin: %w", err))
	}
	r.tx = tx

	if r.cfg.Create == storage.CreateIfAbsent {
		ddl, err := BuildCreateTableSQL(r.cfg.Table, r.cfg.Columns)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return classify(fmt.Errorf("sqlite: create table: %w", err))
		}
	}
	if r.cfg.Write == storage.TruncateThenWrite {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(r.cfg.Table)); err != nil {
			return classify(fmt.Errorf("sqlite: truncate: %w", err))
		}
	}
	return nil
}

// CopyFrom inserts one batch via a prepared statement on the run transaction.
//
// The batch runs inside a savepoint: a mid-batch failure rolls the already
// inserted rows back before the error is returned, so a later per-row retry
// of the same batch cannot deliver those rows twice.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if r.tx == nil {
		return 0, fmt.Errorf("sqlite: CopyFrom before Begin")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	cols := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quoteIdent(c)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(r.cfg.Table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)

	if _, err := r.tx.ExecContext(ctx, "SAVEPOINT batch_write"); err != nil {
		return 0, classify(fmt.Errorf("sqlite: savepoint: %w", err))
	}

	fail := func(err error) (int64, error) {
		if _, rbErr := r.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT batch_write"); rbErr != nil {
			return 0, classify(fmt.Errorf("sqlite: batch rollback: %w", rbErr))
		}
		if _, relErr := r.tx.ExecContext(ctx, "RELEASE SAVEPOINT batch_write"); relErr != nil {
			return 0, classify(fmt.Errorf("sqlite: batch release: %w", relErr))
		}
		return 0, err
	}

	stmt, err := r.tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return fail(classify(fmt.Errorf("sqlite: prepare insert: %w", err)))
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			return fail(&storage.SchemaMismatchError{
				Err: fmt.Errorf("sqlite: row length %d != columns length %d", len(row), len(columns)),
			})
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fail(classify(fmt.Errorf("sqlite: insert: %w", err)))
		}
		inserted++
	}

	if _, err := r.tx.ExecContext(ctx, "RELEASE SAVEPOINT batch_write"); err != nil {
		return inserted, classify(fmt.Errorf("sqlite: release savepoint: %w", err))
	}
	return inserted, nil
}

// Commit publishes the run's rows.
func (r *Repository) Commit(ctx context.Context) error {
	if r.tx == nil {
		return fmt.Errorf("sqlite: Commit before Begin")
	}
	err := r.tx.Commit()
	r.tx = nil
	if err != nil {
		return classify(fmt.Errorf("sqlite: commit: %w", err))
	}
	return nil
}

// Close rolls back an uncommitted transaction and closes the database.
func (r *Repository) Close() {
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
	}
	_ = r.db.Close()
}

// classify maps SQLite errors onto the storage taxonomy. The modernc driver
// surfaces SQLite result codes as message text, so matching is string-based.
func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"):
		return &storage.TransientError{Err: err}
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "has no column"),
		strings.Contains(msg, "datatype mismatch"):
		return &storage.SchemaMismatchError{Err: err}
	default:
		return err
	}
}

// BuildCreateTableSQL builds the all-TEXT CREATE TABLE IF NOT EXISTS
// statement. The table identifier is quoted whole: SQLite has no schemas, so
// a dotted name like "funding.usa_names" stays one identifier.
func BuildCreateTableSQL(table string, columns []string) (string, error) {
	name := strings.TrimSpace(table)
	if name == "" {
		return "", fmt.Errorf("sqlite ddl: table name must not be empty")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("sqlite ddl: at least one column is required")
	}
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		cn := strings.TrimSpace(c)
		if cn == "" {
			return "", fmt.Errorf("sqlite ddl: column with empty name in table %s", name)
		}
		cols = append(cols, quoteIdent(cn)+" TEXT")
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteIdent(name),
		strings.Join(cols, ",\n  "),
	), nil
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
