package storage

import "errors"

// SchemaMismatchError marks a sink rejection caused by type or column
// incompatibility. Retrying the same rows cannot succeed; the orchestrator
// counts these against a configurable threshold instead of retrying.
type SchemaMismatchError struct{ Err error }

func (e *SchemaMismatchError) Error() string { return "schema mismatch: " + e.Err.Error() }
func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying: connectivity loss, lock
// contention, sink briefly unavailable. The orchestrator retries a bounded
// number of times; sustained transient failure becomes fatal.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsSchemaMismatch reports whether err is (or wraps) a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var m *SchemaMismatchError
	return errors.As(err, &m)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
