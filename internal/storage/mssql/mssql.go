// Package mssql is the Microsoft SQL Server destination.
package mssql

import (
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"mongrel/internal/relation"
	"mongrel/internal/storage"
)

func init() {
	storage.Register("mssql", Dialect{}, New)
}

// Dialect renders SQL Server DDL.
//
// SQL Server has no CREATE ... IF NOT EXISTS, so schema and table creation are
// guarded by SCHEMA_ID / OBJECT_ID checks instead.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "mssql" }

func (Dialect) QuoteIdent(name string) string { return mssqlIdent(name) }

// TableName returns [schema].[table], or [table] when no schema is set.
func (Dialect) TableName(t relation.Info) string {
	if t.Schema == "" {
		return mssqlIdent(t.Table)
	}
	return mssqlIdent(t.Schema) + "." + mssqlIdent(t.Table)
}

// CreateSchema runs CREATE SCHEMA through EXEC because it must be the only
// statement in its batch.
func (Dialect) CreateSchema(schema string) string {
	if schema == "" {
		return ""
	}
	inner := "CREATE SCHEMA " + mssqlIdent(schema)
	return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC(N'%s')", nstring(schema), nstring(inner))
}

func (d Dialect) CreateTable(t storage.TableSpec) string {
	return wrapCreateIfMissing(d.TableName(t.Name), storage.FormatBody(storage.TableBody(d, t)))
}

func (d Dialect) DropTable(t relation.Info) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", d.TableName(t))
}

// ClearTable uses DELETE; TRUNCATE is refused on tables referenced by a
// foreign key.
func (d Dialect) ClearTable(t relation.Info) string {
	return fmt.Sprintf("DELETE FROM %s", d.TableName(t))
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
//
// This keeps DDL idempotent without requiring IF NOT EXISTS syntax.
func wrapCreateIfMissing(quoted, body string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s %s; END",
		nstring(quoted),
		quoted,
		body,
	)
}

// nstring escapes s for use inside an N'...' literal.
func nstring(s string) string { return strings.ReplaceAll(s, "'", "''") }

// mssqlIdent bracket-quotes a single identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
