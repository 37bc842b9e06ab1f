// Package postgres implements the Postgres sink using pgx v5. Rows are
// appended with COPY inside a single run-level transaction so the truncate
// disposition and the new rows publish atomically at Commit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ingest/internal/storage"
)

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  storage.Config
	tx   pgx.Tx
}

// NewRepository opens a pgx pool for cfg.DSN. The connection is verified
// lazily on Begin.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, nil
}

// Begin opens the run transaction and applies the configured dispositions:
// CREATE TABLE IF NOT EXISTS for CreateIfAbsent, TRUNCATE for
// TruncateThenWrite. Both run inside the transaction, so a failed run leaves
// the previous table contents untouched.
func (r *Repository) Begin(ctx context.Context) error {
	if r.tx != nil {
		return fmt.Errorf("postgres: Begin called twice")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	r.tx = tx

	if r.cfg.Create == storage.CreateIfAbsent {
		ddl, err := BuildCreateTableSQL(r.cfg.Table, r.cfg.Columns)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return classify(fmt.Errorf("create table: %w", err))
		}
	}
	if r.cfg.Write == storage.TruncateThenWrite {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+quoteFQN(r.cfg.Table)); err != nil {
			return classify(fmt.Errorf("truncate: %w", err))
		}
	}
	return nil
}

// CopyFrom appends one batch via the COPY protocol.
//
// Each batch runs inside a savepoint on the run transaction. A rejected COPY
// would otherwise abort the whole transaction (25P02 on every later
// statement), making per-row salvage of a mismatched batch impossible;
// rolling back to the savepoint keeps the transaction usable.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if r.tx == nil {
		return 0, fmt.Errorf("postgres: CopyFrom before Begin")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if _, err := r.tx.Exec(ctx, "SAVEPOINT batch_write"); err != nil {
		return 0, classify(fmt.Errorf("savepoint: %w", err))
	}
	n, err := r.tx.CopyFrom(ctx, tableIdent(r.cfg.Table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		if _, rbErr := r.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT batch_write"); rbErr != nil {
			return 0, classify(fmt.Errorf("copy rollback: %w", rbErr))
		}
		if _, relErr := r.tx.Exec(ctx, "RELEASE SAVEPOINT batch_write"); relErr != nil {
			return 0, classify(fmt.Errorf("copy release: %w", relErr))
		}
		return 0, classify(fmt.Errorf("copy: %w", err))
	}
	if _, err := r.tx.Exec(ctx, "RELEASE SAVEPOINT batch_write"); err != nil {
		return n, classify(fmt.Errorf("release savepoint: %w", err))
	}
	return n, nil
}

// Commit publishes the run's rows.
func (r *Repository) Commit(ctx context.Context) error {
	if r.tx == nil {
		return fmt.Errorf("postgres: Commit before Begin")
	}
	err := r.tx.Commit(ctx)
	r.tx = nil
	if err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Close rolls back an uncommitted transaction and releases the pool.
func (r *Repository) Close() {
	if r.tx != nil {
		_ = r.tx.Rollback(context.Background())
		r.tx = nil
	}
	r.pool.Close()
}

// classify maps Postgres errors onto the storage error taxonomy.
//
// Class 42 (undefined column/table, datatype mismatch) and class 22 (data
// exceptions) are schema mismatches; class 08 (connection), 40 (serialization)
// and 57P03 are transient. Anything pgx reports without a server error code
// (dead connection, timeout) is treated as transient too.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "42"), strings.HasPrefix(pgErr.Code, "22"):
			return &storage.SchemaMismatchError{Err: err}
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "40"),
			pgErr.Code == "57P03":
			return &storage.TransientError{Err: err}
		default:
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &storage.TransientError{Err: err}
}

// tableIdent converts a possibly schema-qualified name into a pgx.Identifier.
func tableIdent(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
