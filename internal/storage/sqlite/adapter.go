// This file wires the SQLite backend into the storage factory; registration
// happens in init so callers only ever see storage.Repository.
package sqlite

import (
	"context"

	"ingest/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, cfg)
	})
}
