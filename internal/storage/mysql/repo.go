// Package mysql implements the sink on MySQL via database/sql and the
// go-sql-driver driver. Batches become one multi-row INSERT each inside the
// run transaction.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"ingest/internal/storage"
)

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg storage.Config
	tx  *sql.Tx
}

// NewRepository opens a MySQL connection pool and pings it to fail fast on
// bad DSNs or unreachable servers.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Repository{db: db, cfg: cfg}, nil
}

// Begin opens the run transaction and applies the dispositions. MySQL DDL
// auto-commits, so the CREATE runs before the transaction opens; the
// DELETE-based truncate stays inside it for atomic publish.
func (r *Repository) Begin(ctx context.Context) error {
	if r.tx != nil {
		return fmt.Errorf("mysql: Begin called twice")
	}

	if r.cfg.Create == storage.CreateIfAbsent {
		ddl, err := BuildCreateTableSQL(r.cfg.Table, r.cfg.Columns)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return classify(fmt.Errorf("mysql: create table: %w", err))
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("mysql: begin: %w", err))
	}
	r.tx = tx

	if r.cfg.Write == storage.TruncateThenWrite {
		// DELETE, not TRUNCATE TABLE: TRUNCATE is DDL in MySQL and would
		// commit the transaction implicitly.
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteFQN(r.cfg.Table)); err != nil {
			return classify(fmt.Errorf("mysql: truncate: %w", err))
		}
	}
	return nil
}

// CopyFrom inserts one batch as a single multi-row INSERT.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if r.tx == nil {
		return 0, fmt.Errorf("mysql: CopyFrom before Begin")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quoteIdent(c)
	}
	rowPH := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, &storage.SchemaMismatchError{
				Err: fmt.Errorf("mysql: row length %d != columns length %d", len(row), len(columns)),
			}
		}
		placeholders[i] = rowPH
		args = append(args, row...)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		quoteFQN(r.cfg.Table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	res, err := r.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, classify(fmt.Errorf("mysql: insert: %w", err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Commit publishes the run's rows.
func (r *Repository) Commit(ctx context.Context) error {
	if r.tx == nil {
		return fmt.Errorf("mysql: Commit before Begin")
	}
	err := r.tx.Commit()
	r.tx = nil
	if err != nil {
		return classify(fmt.Errorf("mysql: commit: %w", err))
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

// classify maps MySQL server error numbers onto the storage taxonomy.
func classify(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1054, 1136, 1146, 1265, 1366: // unknown column, column count, no table, truncated, bad value
			return &storage.SchemaMismatchError{Err: err}
		case 1205, 1213: // lock wait timeout, deadlock
			return &storage.TransientError{Err: err}
		default:
			return err
		}
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return &storage.TransientError{Err: err}
	}
	return err
}

// BuildCreateTableSQL builds the all-TEXT CREATE TABLE IF NOT EXISTS
// statement with backtick-quoted identifiers.
func BuildCreateTableSQL(table string, columns []string) (string, error) {
	fqn := strings.TrimSpace(table)
	if fqn == "" {
		return "", fmt.Errorf("mysql ddl: table name must not be empty")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("mysql ddl: at least one column is required")
	}
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		cn := strings.TrimSpace(c)
		if cn == "" {
			return "", fmt.Errorf("mysql ddl: column with empty name in table %s", fqn)
		}
		cols = append(cols, quoteIdent(cn)+" TEXT")
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// quoteIdent backtick-quotes one identifier segment.
func quoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// quoteFQN quotes a possibly database-qualified name like "funding.usa_names"
// to `funding`.`usa_names`.
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
