// Package schema defines the sink table shape used by the ingestion pipeline.
//
// A Schema is an ordered list of (name, type) columns, optionally extended
// with one derived column whose value is computed from another column rather
// than taken from the input line. The textual form mirrors the sink schema
// string accepted on the command line:
//
//	hash_code:STRING,permalink:STRING,numEmps:STRING,...
//
// Schemas are immutable for the lifetime of a run: they are parsed and
// validated once at startup and then shared read-only across all pipeline
// stages.
package schema

import (
	"fmt"
	"strings"
)

// Column is a single sink column: a name and its declared sink type.
// All columns in this domain are variable-length text; the Type is carried
// through verbatim so the sink declaration stays bit-exact.
type Column struct {
	Name string
	Type string
}

// Schema describes the full sink column set in declared order, plus an
// optional derived-column binding.
type Schema struct {
	columns []Column

	// Index of the derived column and of its source column within columns,
	// or -1 when no derived column is bound.
	derivedIx int
	sourceIx  int
}

// Parse decodes a schema string of the form "name:TYPE,name:TYPE,...".
//
// Column order is preserved exactly as declared. Duplicate or empty column
// names and missing types are configuration errors.
func Parse(s string) (*Schema, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("schema: empty schema string")
	}

	parts := strings.Split(s, ",")
	cols := make([]Column, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))

	for i, p := range parts {
		name, typ, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("schema: column %d: want name:TYPE, got %q", i, p)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("schema: duplicate column %q", name)
		}
		seen[name] = struct{}{}
		cols = append(cols, Column{Name: name, Type: typ})
	}

	return &Schema{columns: cols, derivedIx: -1, sourceIx: -1}, nil
}

// New builds a Schema directly from columns. It applies the same checks as
// Parse.
func New(cols []Column) (*Schema, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("schema: at least one column required")
	}
	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		if c.Name == "" || c.Type == "" {
			return nil, fmt.Errorf("schema: column %d: name and type required", i)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	cp := make([]Column, len(cols))
	copy(cp, cols)
	return &Schema{columns: cp, derivedIx: -1, sourceIx: -1}, nil
}

// BindDerived marks column derived as computed from column source instead of
// taken positionally from the input. Both names must resolve to declared
// columns and must differ.
//
// Binding is optional: a schema with no derived column maps every column
// positionally.
func (s *Schema) BindDerived(derived, source string) error {
	di := s.Index(derived)
	if di < 0 {
		return fmt.Errorf("schema: derived column %q not declared", derived)
	}
	si := s.Index(source)
	if si < 0 {
		return fmt.Errorf("schema: derived source column %q not declared", source)
	}
	if di == si {
		return fmt.Errorf("schema: derived column %q cannot source itself", derived)
	}
	s.derivedIx = di
	s.sourceIx = si
	return nil
}

// Columns returns the full declared column set, derived column included,
// in declared order. Callers must not mutate the returned slice.
func (s *Schema) Columns() []Column { return s.columns }

// Names returns the declared column names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Name
	}
	return out
}

// Width returns the number of declared columns, derived column included.
func (s *Schema) Width() int { return len(s.columns) }

// Index returns the position of the named column, or -1 when absent.
func (s *Schema) Index(name string) int {
	for i, c := range s.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasDerived reports whether a derived column is bound.
func (s *Schema) HasDerived() bool { return s.derivedIx >= 0 }

// DerivedIndex returns the positions of the derived column and its source
// column. Both are -1 when no derived column is bound.
func (s *Schema) DerivedIndex() (derived, source int) { return s.derivedIx, s.sourceIx }

// InputIndexes returns the column positions that are filled positionally from
// the input line, in declared order, skipping the derived column. The input
// line's k-th value lands at column position InputIndexes()[k].
func (s *Schema) InputIndexes() []int {
	out := make([]int, 0, len(s.columns))
	for i := range s.columns {
		if i == s.derivedIx {
			continue
		}
		out = append(out, i)
	}
	return out
}

// String re-renders the schema in the "name:TYPE,..." wire form. Parsing the
// result yields an identical column set.
func (s *Schema) String() string {
	var sb strings.Builder
	for i, c := range s.columns {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(c.Name)
		sb.WriteByte(':')
		sb.WriteString(c.Type)
	}
	return sb.String()
}
