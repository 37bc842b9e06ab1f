// Package storage contains storage-agnostic contracts for the record sink.
//
// Concrete backends (postgres, sqlite, mysql, mssql) live in subpackages and
// register themselves with the factory at init time; callers select a backend
// by kind and otherwise depend only on the Repository interface. Importing
// ingest/internal/storage/all (even blank) makes every built-in backend
// available.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CreateDisposition controls what happens when the target table is missing.
type CreateDisposition string

// WriteDisposition controls what happens to existing rows before the first
// write of a run.
type WriteDisposition string

const (
	// CreateIfAbsent creates the table with the configured columns when it
	// does not exist; an existing table is reused as-is without re-validating
	// its schema.
	CreateIfAbsent CreateDisposition = "CREATE_IF_ABSENT"
	// CreateNever assumes the table exists and fails the run otherwise.
	CreateNever CreateDisposition = "CREATE_NEVER"

	// TruncateThenWrite clears all existing rows before the run's first
	// write. The truncate and the run's rows commit together, so an external
	// reader never observes the table empty of both old and new rows.
	TruncateThenWrite WriteDisposition = "TRUNCATE_THEN_WRITE"
	// Append leaves existing rows in place.
	Append WriteDisposition = "WRITE_APPEND"
)

// Config selects and configures a sink backend.
type Config struct {
	Kind    string   // backend kind: "postgres", "sqlite", "mysql", "mssql"
	DSN     string   // backend connection string
	Table   string   // target table identifier, possibly schema-qualified
	Columns []string // ordered sink column names; all columns are text

	Create CreateDisposition
	Write  WriteDisposition
}

// Repository is the per-run handle on the sink table.
//
// Lifecycle: New → Begin (applies the dispositions inside the run
// transaction) → any number of CopyFrom batches → Commit (publishes
// atomically) → Close. Close without Commit rolls the run back. CopyFrom may
// be called from the single loader goroutine only; batches may arrive in any
// record order.
type Repository interface {
	Begin(ctx context.Context) error
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Close()
}

// Factory builds a Repository for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for a backend kind. It is
// called from backend packages' init functions.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// New opens a Repository for cfg.Kind. Unknown kinds list the registered
// backends in the error to make misconfiguration obvious.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("storage: table identifier required")
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("storage: at least one column required")
	}
	return fn(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
