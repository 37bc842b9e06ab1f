// This file wires the Postgres backend into the storage factory. Callers
// obtain a Repository via storage.New without importing this package;
// registration happens in init.
package postgres

import (
	"context"

	"ingest/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, cfg)
	})
}
