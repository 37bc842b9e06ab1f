package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ingest/internal/hash"
	"ingest/internal/schema"
)

// ParseError is a per-record failure. The offending line is dropped and the
// run continues; the orchestrator counts and logs these.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse line %d: %s", e.Line, e.Reason)
	}
	return "parse: " + e.Reason
}

// Parser maps one raw line onto a positional Record for a fixed schema.
//
// The mapping is deliberately lenient and part of the data contract:
// downstream digests depend on it staying bit-for-bit stable.
//
//   - Double-quote characters and CRLF sequences are stripped unconditionally
//     as noise; quoting is NOT honored, so a comma inside quotes still splits.
//   - The cleaned line is split on the literal comma and zipped positionally
//     against the schema's non-derived columns, stopping at the shorter side.
//     Missing trailing columns stay nil; surplus values are dropped silently.
//   - When a derived column is bound and its source column received a value,
//     the digest of that raw value is placed at the derived column's index.
//     An absent source leaves the derived column nil; this is an explicit
//     conditional, never a digest over "".
//
// A Parser is immutable after New and safe for concurrent use by the worker
// pool.
type Parser struct {
	sch     *schema.Schema
	inputIx []int
	derived int
	source  int
	digest  hash.Func
}

// New constructs a Parser for the given schema. digest is required only when
// the schema has a derived column bound.
func New(s *schema.Schema, digest hash.Func) (*Parser, error) {
	if s == nil || s.Width() == 0 {
		return nil, fmt.Errorf("parser: schema required")
	}
	derived, source := s.DerivedIndex()
	if derived >= 0 && digest == nil {
		return nil, fmt.Errorf("parser: schema has derived column but no digest function")
	}
	return &Parser{
		sch:     s,
		inputIx: s.InputIndexes(),
		derived: derived,
		source:  source,
		digest:  digest,
	}, nil
}

// Schema returns the schema the parser was built against.
func (p *Parser) Schema() *schema.Schema { return p.sch }

// Parse converts one raw line into a pooled Record. line is the 1-based input
// line number, carried for diagnostics only.
//
// The only hard failure is malformed encoding; every other input shape yields
// a Record. Callers own the returned Record and must Free it after use.
func (p *Parser) Parse(raw string, line int) (*Record, error) {
	if !utf8.ValidString(raw) {
		return nil, &ParseError{Line: line, Reason: "invalid utf-8 encoding"}
	}

	// Quote characters first, then CRLF sequences: same order as the
	// reference, so a CRLF split by a quote still collapses.
	cleaned := strings.ReplaceAll(raw, `"`, "")
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "")

	values := strings.Split(cleaned, ",")

	rec := GetRecord(p.sch.Width())
	rec.Line = line

	// Positional zip, shorter side wins.
	n := len(values)
	if n > len(p.inputIx) {
		n = len(p.inputIx)
	}
	for k := 0; k < n; k++ {
		rec.V[p.inputIx[k]] = values[k]
	}

	if p.derived >= 0 {
		if v, ok := rec.V[p.source].(string); ok {
			rec.V[p.derived] = p.digest(v)
		}
	}

	return rec, nil
}
