// TableSpec and friends live here so both the DDL builder and the backend
// packages can import them without circular deps.
package storage

import (
	"fmt"
	"strings"

	"mongrel/internal/relation"
)

// TableSpec describes one physical table to create.
type TableSpec struct {
	Name        relation.Info
	Columns     []ColumnSpec
	PrimaryKey  []string
	ForeignKeys []ForeignKeySpec
}

// ColumnSpec is a column name plus its SQL definition, verbatim from the mapping.
type ColumnSpec struct {
	Name       string
	Definition string
}

// ForeignKeySpec is FOREIGN KEY (Columns) REFERENCES References (RefColumns).
type ForeignKeySpec struct {
	Columns    []string
	References relation.Info
	RefColumns []string
}

// Dialect renders backend-specific SQL.
//
// Statements are returned without a trailing semicolon.
type Dialect interface {
	// Name is the registered backend kind.
	Name() string
	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string
	// TableName returns the quoted, schema-qualified name of t.
	TableName(t relation.Info) string
	// CreateSchema returns an idempotent schema creation statement, or "" when
	// the backend has no separate schema namespace.
	CreateSchema(schema string) string
	// CreateTable returns an idempotent CREATE TABLE statement.
	CreateTable(t TableSpec) string
	// DropTable returns DROP TABLE IF EXISTS for t.
	DropTable(t relation.Info) string
	// ClearTable returns a statement removing every row of t.
	ClearTable(t relation.Info) string
}

// TableBody renders the parenthesized body lines of t: one line per column,
// then PRIMARY KEY and FOREIGN KEY clauses. Backends share it and differ only
// in quoting and the statement wrapper.
func TableBody(d Dialect, t TableSpec) []string {
	lines := make([]string, 0, len(t.Columns)+1+len(t.ForeignKeys))
	for _, c := range t.Columns {
		lines = append(lines, d.QuoteIdent(c.Name)+" "+c.Definition)
	}
	if len(t.PrimaryKey) > 0 {
		lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", JoinIdents(d, t.PrimaryKey)))
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			JoinIdents(d, fk.Columns), d.TableName(fk.References), JoinIdents(d, fk.RefColumns)))
	}
	return lines
}

// JoinIdents quotes and comma-joins names.
func JoinIdents(d Dialect, names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = d.QuoteIdent(n)
	}
	return strings.Join(q, ", ")
}

// FormatBody joins body lines for a CREATE TABLE statement, one per line.
func FormatBody(lines []string) string {
	return "(\n\t" + strings.Join(lines, ",\n\t") + "\n)"
}
