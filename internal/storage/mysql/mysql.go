// Package mysql is the MySQL / MariaDB destination.
//
// MySQL treats a schema as a database, so the relation schema maps to
// CREATE DATABASE and tables are addressed as `schema`.`table`.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"mongrel/internal/relation"
	"mongrel/internal/storage"
)

// maxParams is the prepared statement placeholder limit.
const maxParams = 65535

func init() {
	storage.Register("mysql", Dialect{}, New)
}

// Dialect renders MySQL DDL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) QuoteIdent(name string) string { return myIdent(name) }

func (Dialect) TableName(t relation.Info) string {
	if t.Schema == "" {
		return myIdent(t.Table)
	}
	return myIdent(t.Schema) + "." + myIdent(t.Table)
}

func (Dialect) CreateSchema(schema string) string {
	if schema == "" {
		return ""
	}
	return "CREATE DATABASE IF NOT EXISTS " + myIdent(schema)
}

func (d Dialect) CreateTable(t storage.TableSpec) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", d.TableName(t.Name), storage.FormatBody(storage.TableBody(d, t)))
}

func (d Dialect) DropTable(t relation.Info) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", d.TableName(t))
}

// ClearTable uses DELETE; TRUNCATE fails on tables referenced by a foreign key.
func (d Dialect) ClearTable(t relation.Info) string {
	return fmt.Sprintf("DELETE FROM %s", d.TableName(t))
}

// Destination implements storage.Destination for MySQL.
type Destination struct {
	db *sql.DB
}

// New parses cfg.DSN in go-sql-driver format (user:pass@tcp(host:3306)/db)
// and opens a connector with parseTime enabled.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	mc.ParseTime = true

	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(conn)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Destination{db: db}, nil
}

func (r *Destination) Dialect() storage.Dialect { return Dialect{} }

func (r *Destination) Close() { _ = r.db.Close() }

func (r *Destination) Exec(ctx context.Context, stmt string) error {
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

// InsertRows performs chunked INSERT IGNORE. Duplicate primary keys become
// warnings and are skipped.
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
			return total, fmt.Errorf("mysql: insert into %s: %w", name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, myIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT IGNORE INTO ")
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
		args = append(args, row[:len(columns)]...)
	}
	return b.String(), args
}

func myIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
