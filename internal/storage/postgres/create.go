package postgres

import (
	"fmt"
	"strings"
)

// BuildCreateTableSQL builds a deterministic Postgres CREATE TABLE IF NOT
// EXISTS statement for the sink table. Every column is variable-length text;
// identifiers are double-quoted with embedded quotes escaped.
func BuildCreateTableSQL(table string, columns []string) (string, error) {
	fqn := strings.TrimSpace(table)
	if fqn == "" {
		return "", fmt.Errorf("postgres ddl: table name must not be empty")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("postgres ddl: at least one column is required")
	}

	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		name := strings.TrimSpace(c)
		if name == "" {
			return "", fmt.Errorf("postgres ddl: column with empty name in table %s", fqn)
		}
		cols = append(cols, quoteIdent(name)+" TEXT")
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// quoteIdent quotes a single identifier segment, escaping embedded quotes.
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// quoteFQN quotes a possibly schema-qualified name like "funding.usa_names"
// to `"funding"."usa_names"`. Empty segments are ignored.
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
