package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"mongrel/internal/relation"
	"mongrel/internal/storage"
)

// maxParams is the Postgres wire protocol limit on bind parameters per statement.
const maxParams = 65535

// Destination implements storage.Destination for Postgres on a pgx pool.
type Destination struct {
	pool *pgxpool.Pool
}

// New opens a pool for cfg.DSN and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Destination{pool: pool}, nil
}

func (d *Destination) Dialect() storage.Dialect { return Dialect{} }

// Close closes the connection pool.
func (d *Destination) Close() { d.pool.Close() }

func (d *Destination) Exec(ctx context.Context, stmt string) error {
	_, err := d.pool.Exec(ctx, stmt)
	return err
}

// InsertRows inserts rows with ON CONFLICT DO NOTHING, so rows whose primary
// key (or any unique constraint) already exists are skipped. key is not needed
// here; Postgres resolves conflicts against every constraint.
func (d *Destination) InsertRows(ctx context.Context, table relation.Info, columns []string, key []string, rows [][]any) (int64, error) {
	if len(rows) == 0 || len(columns) == 0 {
		return 0, nil
	}

	name := Dialect{}.TableName(table)
	var total int64
	for _, part := range storage.Chunks(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(name, columns, part)
		cmd, err := d.pool.Exec(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("postgres: insert into %s: %w", name, err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// It is pure and deterministic, so placeholder numbering and the conflict
// clause are unit tested without a database.
//
// Constraints:
//   - every row must have len(columns) values.
//   - columns must be non-empty.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT DO NOTHING")
	return b.String(), args
}
