// Package parser turns raw input lines into positional records aligned with a
// sink schema. This file defines a pooled Record type used across
// reader → parser workers → loader to reduce heap churn and GC pressure.
package parser

import "sync"

// Record is a pooled container holding one parsed row in sink column order.
//
// Contract:
//   - V has exactly schema.Width() elements; V[i] is either a string value or
//     nil when the column received no input (lenient positional zip).
//   - After the record has been persisted (or dropped), the consumer must
//     call r.Free() to return it to the pool.
//   - Do not retain references to r or r.V beyond the owning stage.
//
// V is []any so batches can feed pgx CopyFromRows and database/sql args
// directly.
type Record struct {
	V []any

	// Line is the 1-based input line number the record came from, used only
	// for diagnostics.
	Line int
}

var recordPool sync.Pool

// GetRecord returns a pooled Record with length width. All elements are
// zeroed.
func GetRecord(width int) *Record {
	if v := recordPool.Get(); v != nil {
		r := v.(*Record)
		if cap(r.V) < width {
			r.V = make([]any, width)
		}
		r.V = r.V[:width]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Record{V: make([]any, width)}
}

// Free returns the Record to the pool. The caller must not use r after Free.
func (r *Record) Free() {
	recordPool.Put(r)
}
