package postgres

import (
	"fmt"
	"strings"

	"mongrel/internal/relation"
	"mongrel/internal/storage"
)

// Dialect renders Postgres DDL.
//
// Tables are schema-qualified ("schema"."table") and every schema gets its own
// CREATE SCHEMA IF NOT EXISTS statement.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) QuoteIdent(name string) string { return pgIdent(name) }

// TableName returns "schema"."table", or just "table" when no schema is set.
func (Dialect) TableName(t relation.Info) string {
	if t.Schema == "" {
		return pgIdent(t.Table)
	}
	return pgIdent(t.Schema) + "." + pgIdent(t.Table)
}

func (Dialect) CreateSchema(schema string) string {
	if schema == "" {
		return ""
	}
	return "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema)
}

func (d Dialect) CreateTable(t storage.TableSpec) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", d.TableName(t.Name), storage.FormatBody(storage.TableBody(d, t)))
}

// DropTable cascades so dependent foreign keys do not block the drop.
func (d Dialect) DropTable(t relation.Info) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", d.TableName(t))
}

func (d Dialect) ClearTable(t relation.Info) string {
	return fmt.Sprintf("TRUNCATE TABLE %s CASCADE", d.TableName(t))
}

// pgIdent quotes a Postgres identifier.
//
// Quoted identifiers are case-sensitive, so "Name" and name differ.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
