package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mongrel/internal/relation"
	"mongrel/internal/storage"
)

// maxParams stays under SQL Server's limit of 2100 parameters per request.
const maxParams = 2000

// Destination implements storage.Destination for Microsoft SQL Server.
//
// Insert-or-ignore is a set-based INSERT ... SELECT ... WHERE NOT EXISTS.
// Unlike Postgres ON CONFLICT DO NOTHING, that statement does not collapse
// duplicates inside its own VALUES source, so every batch is first reduced to
// one row per key (first occurrence wins).
type Destination struct {
	db dbConn
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for ETL-style bursty loads.
	raw.SetMaxOpenConns(64)
	raw.SetMaxIdleConns(64)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Destination{db: raw}, nil
}

func (r *Destination) Dialect() storage.Dialect { return Dialect{} }

// Close releases database resources held by this destination.
func (r *Destination) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Destination) Exec(ctx context.Context, stmt string) error {
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

// InsertRows inserts rows whose key is not yet present in table.
//
// Without key columns there is nothing to test against, so rows are inserted
// as-is.
func (r *Destination) InsertRows(ctx context.Context, table relation.Info, columns []string, key []string, rows [][]any) (int64, error) {
	if len(rows) == 0 || len(columns) == 0 {
		return 0, nil
	}

	rows, err := storage.DedupeRows(columns, key, rows)
	if err != nil {
		return 0, fmt.Errorf("mssql: %w", err)
	}

	name := Dialect{}.TableName(table)
	var total int64
	for _, part := range storage.Chunks(rows, len(columns), maxParams) {
		q, args := buildInsertNotExistsSQL(name, columns, part, key)
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("mssql: insert into %s: %w", name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// buildInsertNotExistsSQL builds:
//
//	INSERT INTO t (cols) SELECT v.cols FROM (VALUES (...), ...) AS v(cols)
//	WHERE NOT EXISTS (SELECT 1 FROM t x WHERE x.k = v.k AND ...)
//
// With no key columns the WHERE clause is omitted.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, key []string) (string, []any) {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}

	b.WriteString(") SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v.")
		b.WriteString(mssqlIdent(c))
	}

	b.WriteString(" FROM (VALUES ")
	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(") AS v(")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(")")

	if len(key) == 0 {
		return b.String(), args
	}

	b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(table)
	b.WriteString(" x WHERE ")
	for i, k := range key {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("x.")
		b.WriteString(mssqlIdent(k))
		b.WriteString(" = v.")
		b.WriteString(mssqlIdent(k))
	}
	b.WriteString(")")

	return b.String(), args
}

// dbConn is a small interface over *sql.DB used to make this package testable.
//
// It holds only the methods this file calls.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

var _ dbConn = (*sql.DB)(nil)
