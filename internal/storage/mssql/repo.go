// Package mssql implements the sink on Microsoft SQL Server using the
// go-mssqldb driver. Batches use the driver's bulk-copy API (mssql.CopyIn)
// inside the run transaction.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"ingest/internal/storage"
)

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg storage.Config
	tx  *sql.Tx
}

// NewRepository validates the DSN early via msdsn.Parse to fail fast on
// obvious mistakes, then opens and pings the connection pool.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repository{db: db, cfg: cfg}, nil
}

// Begin opens the run transaction and applies the dispositions.
func (r *Repository) Begin(ctx context.Context) error {
	if r.tx != nil {
		return fmt.Errorf("mssql: Begin called twice")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("mssql: begin: %w", err))
	}
	r.tx = tx

	if r.cfg.Create == storage.CreateIfAbsent {
		ddl, err := BuildCreateTableSQL(r.cfg.Table, r.cfg.Columns)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return classify(fmt.Errorf("mssql: create table: %w", err))
		}
	}
	if r.cfg.Write == storage.TruncateThenWrite {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteFQN(r.cfg.Table)); err != nil {
			return classify(fmt.Errorf("mssql: truncate: %w", err))
		}
	}
	return nil
}

// CopyFrom bulk-copies one batch into the target table.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if r.tx == nil {
		return 0, fmt.Errorf("mssql: CopyFrom before Begin")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	stmt, err := r.tx.PrepareContext(ctx, mssql.CopyIn(r.cfg.Table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, classify(fmt.Errorf("mssql: prepare bulk copy: %w", err))
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, &storage.SchemaMismatchError{
				Err: fmt.Errorf("mssql: row length %d != columns length %d", len(row), len(columns)),
			}
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, classify(fmt.Errorf("mssql: bulk row: %w", err))
		}
	}

	// The final empty Exec flushes the bulk operation and reports the count.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, classify(fmt.Errorf("mssql: bulk flush: %w", err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Commit publishes the run's rows.
func (r *Repository) Commit(ctx context.Context) error {
	if r.tx == nil {
		return fmt.Errorf("mssql: Commit before Begin")
	}
	err := r.tx.Commit()
	r.tx = nil
	if err != nil {
		return classify(fmt.Errorf("mssql: commit: %w", err))
	}
	return nil
}

// Close rolls back an uncommitted transaction and closes the pool.
func (r *Repository) Close() {
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
	}
	_ = r.db.Close()
}

// classify maps SQL Server error numbers onto the storage taxonomy.
func classify(err error) error {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case 207, 208, 213, 245: // invalid column, invalid object, column mismatch, conversion
			return &storage.SchemaMismatchError{Err: err}
		case 1205, 10928, 40197, 40501, 40613: // deadlock and azure throttling/availability
			return &storage.TransientError{Err: err}
		default:
			return err
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return &storage.TransientError{Err: err}
	}
	return err
}

// BuildCreateTableSQL builds the create-if-absent statement. SQL Server has
// no CREATE TABLE IF NOT EXISTS, so the statement guards on OBJECT_ID.
// Columns are NVARCHAR(MAX), the variable-length text type.
func BuildCreateTableSQL(table string, columns []string) (string, error) {
	fqn := strings.TrimSpace(table)
	if fqn == "" {
		return "", fmt.Errorf("mssql ddl: table name must not be empty")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("mssql ddl: at least one column is required")
	}
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		cn := strings.TrimSpace(c)
		if cn == "" {
			return "", fmt.Errorf("mssql ddl: column with empty name in table %s", fqn)
		}
		cols = append(cols, quoteIdent(cn)+" NVARCHAR(MAX)")
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n  %s\n);",
		strings.ReplaceAll(fqn, "'", "''"),
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// quoteIdent bracket-quotes one identifier segment.
func quoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// quoteFQN quotes a possibly schema-qualified name like "funding.usa_names"
// to [funding].[usa_names].
func quoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, quoteIdent(p))
		}
	}
	return strings.Join(out, ".")
}
