// Package transfer streams documents from a source into the tables of a
// schema.Plan, buffering rows per physical table and writing each table only
// after the tables it references.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/samber/lo"

	"mongrel/internal/document"
	"mongrel/internal/metrics"
	"mongrel/internal/relation"
	"mongrel/internal/schema"
	"mongrel/internal/source"
	"mongrel/internal/storage"
)

// DefaultBatchSize is used when Engine.BatchSize is not positive.
const DefaultBatchSize = 1000

// DefaultPlaceholder fills primary-key columns the document does not provide.
const DefaultPlaceholder = " "

// Logger is the minimal logging interface used by the engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Engine runs one transfer. It is not safe for concurrent use; buffers are
// owned by a single Run.
type Engine struct {
	Dest   storage.Destination
	Logger Logger

	// BatchSize is the buffered row count above which a table is flushed
	// after a document. Defaults to DefaultBatchSize.
	BatchSize int

	// Placeholder replaces absent primary-key values outside junction
	// tables. Defaults to DefaultPlaceholder.
	Placeholder any
}

// Stats summarizes a run. Rows counts buffered rows per table, Inserted the
// rows the destination actually accepted.
type Stats struct {
	Documents int64
	Rows      map[string]int64
	Inserted  map[string]int64
	Flushes   int
}

// ConversionError reports a value its column conversion rejected.
type ConversionError struct {
	Table  relation.Info
	Column string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("transfer: %s.%s: %v", e.Table, e.Column, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Run executes the plan's reset and DDL statements, then streams collection
// from src into the destination. On error, rows already flushed stay written.
func (e *Engine) Run(ctx context.Context, plan *schema.Plan, src source.Source, collection string) (Stats, error) {
	if e.Dest == nil {
		return Stats{}, errors.New("transfer: Dest is required")
	}
	if plan == nil {
		return Stats{}, errors.New("transfer: plan is required")
	}
	if src == nil {
		return Stats{}, errors.New("transfer: source is required")
	}

	logf := e.logger()
	r := newRun(e, plan)

	ddlStart := time.Now()
	err := r.execStatements(ctx, plan.Sequence())
	metrics.RecordStage("ddl", ddlStart, err)
	if err != nil {
		return r.stats, err
	}
	logf("stage=ddl ok statements=%d duration=%s", len(plan.Sequence()), durMS(ddlStart))

	streamStart := time.Now()
	err = src.Iterate(ctx, collection, func(doc *document.Object) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.consume(ctx, doc)
	})
	if err == nil {
		err = r.flushAll(ctx)
	}
	metrics.RecordStage("transfer", streamStart, err)
	if err != nil {
		logf("stage=transfer status=error documents=%d duration=%s err=%v", r.stats.Documents, durMS(streamStart), err)
		return r.stats, err
	}

	logf("stage=transfer ok documents=%d flushes=%d duration=%s", r.stats.Documents, r.stats.Flushes, durMS(streamStart))
	for _, t := range plan.Tables {
		name := t.Name().String()
		logf("stage=table table=%s rows=%d inserted=%d", name, r.stats.Rows[name], r.stats.Inserted[name])
	}
	return r.stats, nil
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return e.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// reader extracts the rows of one relation from a document.
type reader struct {
	rel   *relation.Relation
	paths *pathTrie
	buf   *buffer
	// slot maps each relation column to its index in the table row.
	slot []int
}

// buffer holds the pending rows of one physical table.
type buffer struct {
	table   *schema.Table
	columns []string
	key     []string
	rows    [][]any
}

type run struct {
	e           *Engine
	batchSize   int
	placeholder any
	logf        func(format string, v ...any)

	buffers map[relation.Info]*buffer
	order   []*buffer
	readers []reader
	stats   Stats
}

func newRun(e *Engine, plan *schema.Plan) *run {
	r := &run{
		e:           e,
		batchSize:   e.BatchSize,
		placeholder: e.Placeholder,
		logf:        e.logger(),
		buffers:     make(map[relation.Info]*buffer, len(plan.Tables)),
		stats: Stats{
			Rows:     make(map[string]int64, len(plan.Tables)),
			Inserted: make(map[string]int64, len(plan.Tables)),
		},
	}
	if r.batchSize <= 0 {
		r.batchSize = DefaultBatchSize
	}
	if r.placeholder == nil {
		r.placeholder = DefaultPlaceholder
	}

	for _, t := range plan.Tables {
		cols := t.Columns()
		pos := make(map[string]int, len(cols))
		for i, c := range cols {
			pos[c] = i
		}
		b := &buffer{
			table:   t,
			columns: cols,
			key:     t.Spec.PrimaryKey,
		}
		r.buffers[t.Name()] = b
		r.order = append(r.order, b)

		for _, rel := range t.Relations {
			if len(rel.Columns) == 0 {
				continue
			}
			paths := lo.Map(rel.Columns, func(c relation.Column, _ int) []string { return c.Path })
			slot := lo.Map(rel.Columns, func(c relation.Column, _ int) int { return pos[c.Name] })
			r.readers = append(r.readers, reader{rel: rel, paths: newPathTrie(paths...), buf: b, slot: slot})
		}
	}
	return r
}

func (r *run) execStatements(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if err := r.e.Dest.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("transfer: executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// consume appends the rows doc yields for every relation, then flushes any
// buffer over the batch size.
func (r *run) consume(ctx context.Context, doc *document.Object) error {
	r.stats.Documents++
	metrics.IncCounter(metrics.DocumentsTotal, 1, nil)

	for _, rd := range r.readers {
		rows, err := r.read(rd, doc)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		rd.buf.rows = append(rd.buf.rows, rows...)
		name := rd.buf.table.Name().String()
		r.stats.Rows[name] += int64(len(rows))
		metrics.IncCounter(metrics.RowsTotal, float64(len(rows)), metrics.Labels{"table": name})
	}

	for _, b := range r.order {
		if len(b.rows) > r.batchSize {
			if err := r.cascade(ctx, b, map[relation.Info]bool{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// read projects doc onto the relation's paths, flattens it and lays each
// flattened record out in table column order.
func (r *run) read(rd reader, doc *document.Object) ([][]any, error) {
	flat := flatten(project(doc, rd.paths))
	out := make([][]any, 0, len(flat))

	for _, rec := range flat {
		vals := make([]any, len(rd.buf.columns))
		resolved := false
		complete := true
		for i, c := range rd.rel.Columns {
			v, ok := rec[c.TranslatedPath]
			if ok && v != nil {
				// Inherited keys alone do not make a row; a junction has nothing else.
				if c.References.IsZero() || rd.rel.IsJunction() {
					resolved = true
				}
				cv, err := c.Conversion.Apply(v)
				if err != nil {
					return nil, &ConversionError{Table: rd.buf.table.Name(), Column: c.Name, Err: err}
				}
				v = cv
			}
			if v == nil && c.IsPrimaryKey() {
				if rd.rel.IsJunction() {
					complete = false
					break
				}
				v = r.placeholder
			}
			vals[rd.slot[i]] = v
		}
		if !resolved || !complete {
			continue
		}
		out = append(out, vals)
	}
	return out, nil
}

// cascade writes every table b references, depth first, then b itself.
// visited guards against writing a table twice within one flush round.
func (r *run) cascade(ctx context.Context, b *buffer, visited map[relation.Info]bool) error {
	name := b.table.Name()
	if visited[name] {
		return nil
	}
	visited[name] = true

	for _, dep := range b.table.Dependencies {
		db, ok := r.buffers[dep]
		if !ok {
			return fmt.Errorf("transfer: %s depends on unknown table %s", name, dep)
		}
		if err := r.cascade(ctx, db, visited); err != nil {
			return err
		}
	}
	return r.write(ctx, b)
}

func (r *run) write(ctx context.Context, b *buffer) error {
	if len(b.rows) == 0 {
		return nil
	}
	name := b.table.Name().String()
	labels := metrics.Labels{"table": name}
	start := time.Now()

	n, err := r.e.Dest.InsertRows(ctx, b.table.Name(), b.columns, b.key, b.rows)
	if err != nil {
		r.logf("stage=flush table=%s status=error rows=%d duration=%s err=%v", name, len(b.rows), durMS(start), err)
		return fmt.Errorf("transfer: writing %s: %w", name, err)
	}
	metrics.ObserveHistogram(metrics.FlushDurationSeconds, time.Since(start).Seconds(), labels)
	metrics.IncCounter(metrics.FlushesTotal, 1, nil)
	metrics.IncCounter(metrics.InsertedTotal, float64(n), labels)
	r.logf("stage=flush table=%s rows=%d inserted=%d duration=%s", name, len(b.rows), n, durMS(start))

	r.stats.Flushes++
	r.stats.Inserted[name] += n
	b.rows = b.rows[:0]
	return nil
}

// flushAll writes whatever is left, in creation order.
func (r *run) flushAll(ctx context.Context) error {
	visited := map[relation.Info]bool{}
	for _, b := range r.order {
		if err := r.cascade(ctx, b, visited); err != nil {
			return err
		}
	}
	return nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(stmt, "\n")
	return line
}
