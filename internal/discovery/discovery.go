// Package discovery samples a collection and infers, per nested field,
// whether its values repeat. Repetition decides the cardinality of the
// relation between a sub-document and the document that embeds it.
//
// The output is advisory: a relation configuration and a report an operator
// edits into the mapping that drives the transfer.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"mongrel/internal/bloom"
	"mongrel/internal/document"
	"mongrel/internal/metrics"
	"mongrel/internal/relation"
	"mongrel/internal/source"
)

// Logger is the minimal logging interface used by the discoverer.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Options tunes a Discoverer.
type Options struct {
	// Cutoff is the sampled fraction of the collection, in (0,1].
	// Anything else means the whole collection.
	Cutoff float64

	// FalsePositive is the target rate of every membership filter.
	// Defaults to bloom.DefaultFalsePositive.
	FalsePositive float64

	Logger Logger
}

// Discoverer walks documents and collects FieldStats per table.
type Discoverer struct {
	opts Options
}

// New returns a Discoverer with normalized options.
func New(opts Options) *Discoverer {
	if opts.Cutoff <= 0 || opts.Cutoff > 1 {
		opts.Cutoff = 1
	}
	if opts.FalsePositive <= 0 || opts.FalsePositive >= 1 {
		opts.FalsePositive = bloom.DefaultFalsePositive
	}
	return &Discoverer{opts: opts}
}

// FieldStats is what discovery learned about one field of one table.
type FieldStats struct {
	Name string

	// Unique stays true until a value is seen twice. A filter false
	// positive can clear it early; a real repeat always clears it.
	Unique bool

	// IsTable is set once the field held a sub-document.
	IsTable bool

	// IsList is set once the field held a list.
	IsList bool

	filter *bloom.Filter
	paths  map[string]struct{}
}

// Paths returns the distinct dotted paths the field was seen at, sorted.
func (f *FieldStats) Paths() []string {
	out := lo.Keys(f.paths)
	slices.Sort(out)
	return out
}

func (f *FieldStats) observe(v document.Value, path []string) {
	f.paths[strings.Join(path, ".")] = struct{}{}
	if f.filter.TestAndAddValue(v) {
		f.Unique = false
	}
}

// Table is one discovered table: the collection itself or a sub-document key.
type Table struct {
	Name   string
	fields map[string]*FieldStats
	order  []string
}

// Fields returns the table's fields in first-seen order.
func (t *Table) Fields() []*FieldStats {
	return lo.Map(t.order, func(name string, _ int) *FieldStats { return t.fields[name] })
}

// Field returns the named field.
func (t *Table) Field(name string) (*FieldStats, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// Edge is one inferred relation from a table to the table of one of its
// sub-document fields.
type Edge struct {
	Parent string
	Child  string
	Kind   relation.Kind
}

// Result is the outcome of one Run.
type Result struct {
	Collection string
	// Total is the collection size the filters were sized for.
	Total int64
	// Sampled is the number of documents walked.
	Sampled int64

	tables map[string]*Table
	order  []string
}

// Tables returns every discovered table, the collection first.
func (r *Result) Tables() []*Table {
	return lo.Map(r.order, func(name string, _ int) *Table { return r.tables[name] })
}

// Table returns the named table.
func (r *Result) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

var errSampled = errors.New("discovery: sample complete")

// Run counts collection, then walks at most ceil(cutoff × count) documents,
// stopping as soon as that many were visited.
func (d *Discoverer) Run(ctx context.Context, src source.Source, collection string) (*Result, error) {
	if src == nil {
		return nil, errors.New("discovery: source is required")
	}
	if collection == "" {
		return nil, errors.New("discovery: collection is required")
	}
	logf := d.logger()
	start := time.Now()

	total, err := src.Count(ctx, collection)
	if err != nil {
		metrics.RecordStage("discover", start, err)
		return nil, fmt.Errorf("discovery: count %s: %w", collection, err)
	}

	w := newWalker(collection, total, d.opts.FalsePositive)
	limit := int64(math.Ceil(d.opts.Cutoff * float64(total)))
	sampled := d.opts.Cutoff < 1

	err = src.Iterate(ctx, collection, func(doc *document.Object) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.walk(doc, collection, nil)
		w.res.Sampled++
		if sampled && w.res.Sampled >= limit {
			return errSampled
		}
		return nil
	})
	if errors.Is(err, errSampled) {
		err = nil
	}
	metrics.RecordStage("discover", start, err)
	if err != nil {
		logf("stage=discover collection=%s status=error sampled=%d duration=%s err=%v", collection, w.res.Sampled, durMS(start), err)
		return nil, fmt.Errorf("discovery: iterate %s: %w", collection, err)
	}

	logf("stage=discover collection=%s ok sampled=%d total=%d tables=%d duration=%s",
		collection, w.res.Sampled, total, len(w.res.order), durMS(start))
	for _, dup := range w.res.DuplicateTables() {
		logf("stage=discover duplicate_candidates=%s", strings.Join(dup, ","))
	}
	return w.res, nil
}

func (d *Discoverer) logger() func(format string, v ...any) {
	if d.opts.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return d.opts.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type walker struct {
	res      *Result
	expected uint
	fp       float64
	// walked holds, per sub-document key, the sub-documents already
	// descended into.
	walked map[string]*bloom.Filter
}

func newWalker(collection string, total int64, fp float64) *walker {
	w := &walker{
		res:      &Result{Collection: collection, Total: total, tables: map[string]*Table{}},
		expected: uint(max(total, 1)),
		fp:       fp,
		walked:   map[string]*bloom.Filter{},
	}
	w.table(collection)
	return w
}

func (w *walker) table(name string) *Table {
	t, ok := w.res.tables[name]
	if !ok {
		t = &Table{Name: name, fields: map[string]*FieldStats{}}
		w.res.tables[name] = t
		w.res.order = append(w.res.order, name)
	}
	return t
}

func (w *walker) field(t *Table, name string, capacity uint) *FieldStats {
	f, ok := t.fields[name]
	if !ok {
		f = &FieldStats{
			Name:   name,
			Unique: true,
			filter: bloom.New(capacity, w.fp),
			paths:  map[string]struct{}{},
		}
		t.fields[name] = f
		t.order = append(t.order, name)
	}
	return f
}

func (w *walker) walk(doc *document.Object, base string, prefix []string) {
	parent := w.table(base)
	for _, key := range doc.Keys() {
		v, _ := doc.Get(key)
		w.visit(parent, key, v, prefix)
	}
}

// visit handles one occurrence of key in parent. List elements are visited
// as repeated occurrences of the same key at the same path.
func (w *walker) visit(parent *Table, key string, v document.Value, prefix []string) {
	path := append(slices.Clip(prefix), key)
	switch t := v.(type) {
	case *document.Object:
		w.table(key)
		f := w.field(parent, key, w.expected)
		f.IsTable = true
		f.observe(t, path)

		seen, ok := w.walked[key]
		if !ok {
			seen = bloom.New(w.expected, w.fp)
			w.walked[key] = seen
		}
		if !seen.TestAndAddValue(t) {
			w.walk(t, key, path)
		}
	case document.List:
		f := w.field(parent, key, uint(max(len(t), 1))*w.expected)
		f.IsList = true
		for _, e := range t {
			w.visit(parent, key, e, prefix)
		}
	case document.Scalar:
		if t.IsNull() {
			return
		}
		w.field(parent, key, w.expected).observe(t, path)
	}
}

// Relations derives one edge per table-valued field, in discovery order.
func (r *Result) Relations() []Edge {
	var out []Edge
	for _, t := range r.Tables() {
		for _, f := range t.Fields() {
			if !f.IsTable {
				continue
			}
			out = append(out, Edge{Parent: t.Name, Child: f.Name, Kind: kindOf(f)})
		}
	}
	return out
}

func kindOf(f *FieldStats) relation.Kind {
	switch {
	case f.IsList && f.Unique:
		return relation.OneToMany
	case f.IsList:
		return relation.ManyToMany
	case f.Unique:
		return relation.OneToOne
	default:
		return relation.ManyToOne
	}
}

// DuplicateTables groups tables whose field-name sets are identical. Groups
// and their members are sorted; tables without fields are ignored.
func (r *Result) DuplicateTables() [][]string {
	groups := lo.GroupBy(lo.Filter(r.Tables(), func(t *Table, _ int) bool { return len(t.order) > 0 }),
		func(t *Table) string {
			names := slices.Clone(t.order)
			slices.Sort(names)
			return strings.Join(names, "\x00")
		})

	var out [][]string
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		names := lo.Map(g, func(t *Table, _ int) string { return t.Name })
		slices.Sort(names)
		out = append(out, names)
	}
	slices.SortFunc(out, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return out
}
