// Package all wires all built-in storage backends into the storage factory.
//
// It exists purely for side effects: a blank import runs each backend's init
// function, which registers its factory with the storage package. Importing
// this package makes the following sink kinds available at runtime:
//
//   - "postgres" (ingest/internal/storage/postgres)
//   - "sqlite"   (ingest/internal/storage/sqlite)
//   - "mysql"    (ingest/internal/storage/mysql)
//   - "mssql"    (ingest/internal/storage/mssql)
//
// Binaries that want a subset can blank-import individual backends instead.
package all

import (
	_ "ingest/internal/storage/mssql"
	_ "ingest/internal/storage/mysql"
	_ "ingest/internal/storage/postgres"
	_ "ingest/internal/storage/sqlite"
)
