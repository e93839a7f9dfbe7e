// Package sqlite is the SQLite destination, built on the pure-Go
// modernc.org/sqlite driver.
//
// SQLite has no schema namespace for ordinary tables, so a relation
// "music.tracks" becomes the single quoted table name "music.tracks".
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mongrel/internal/relation"
	"mongrel/internal/storage"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for SQLite >= 3.32.
const maxParams = 32766

func init() {
	storage.Register("sqlite", Dialect{}, New)
}

// Dialect renders SQLite DDL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) QuoteIdent(name string) string { return sqlIdent(name) }

// TableName flattens schema and table into one identifier.
func (Dialect) TableName(t relation.Info) string { return sqlIdent(t.String()) }

func (Dialect) CreateSchema(string) string { return "" }

func (d Dialect) CreateTable(t storage.TableSpec) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", d.TableName(t.Name), storage.FormatBody(storage.TableBody(d, t)))
}

func (d Dialect) DropTable(t relation.Info) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", d.TableName(t))
}

// ClearTable uses DELETE; SQLite has no TRUNCATE.
func (d Dialect) ClearTable(t relation.Info) string {
	return fmt.Sprintf("DELETE FROM %s", d.TableName(t))
}

// Destination implements storage.Destination for SQLite.
type Destination struct {
	db *sql.DB
}

// New opens cfg.DSN (a file path or ":memory:") and turns on foreign key
// enforcement.
//
// The pool is pinned to a single connection: every connection to ":memory:"
// is its own database, and the foreign_keys pragma is per connection.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return &Destination{db: db}, nil
}

func (r *Destination) Dialect() storage.Dialect { return Dialect{} }

func (r *Destination) Close() { _ = r.db.Close() }

func (r *Destination) Exec(ctx context.Context, stmt string) error {
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

// InsertRows performs chunked multi-row INSERT OR IGNORE. The primary key
// declared in the table DDL is what makes the ignore apply.
func (r *Destination) InsertRows(ctx context.Context, table relation.Info, columns []string, key []string, rows [][]any) (int64, error) {
	if len(rows) == 0 || len(columns) == 0 {
		return 0, nil
	}

	name := Dialect{}.TableName(table)
	var total int64
	for _, part := range storage.Chunks(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(name, columns, part)
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("sqlite: insert into %s: %w", name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// buildInsertSQL returns INSERT OR IGNORE INTO table (...) VALUES (?, ...), ...
// with time values bound as RFC3339Nano text.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for j := range columns {
			args = append(args, bindValue(row[j]))
		}
	}
	return b.String(), args
}

// bindValue stores timestamps as RFC3339Nano strings so they round trip
// regardless of the column's declared type affinity.
func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return formatSQLiteTime(t)
	}
	return v
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
