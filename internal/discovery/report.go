package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"

	"mongrel/internal/relation"
)

// RelationConfig renders the inferred edges as a relation configuration
// rooted at the collection: table keys alternate with cardinality keys,
// e.g. {"songs": {"n:1": {"genre": {}}}}. A child that is already an
// ancestor on the current path is left out.
func (r *Result) RelationConfig() ([]byte, error) {
	byParent := lo.GroupBy(r.Relations(), func(e Edge) string { return e.Parent })

	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeKey(&buf, r.Collection); err != nil {
		return nil, err
	}
	if err := r.writeNode(&buf, r.Collection, byParent, map[string]bool{}); err != nil {
		return nil, err
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return nil, fmt.Errorf("discovery: relation config: %w", err)
	}
	return out.Bytes(), nil
}

func (r *Result) writeNode(buf *bytes.Buffer, table string, byParent map[string][]Edge, ancestors map[string]bool) error {
	ancestors[table] = true
	defer delete(ancestors, table)

	edges := lo.Filter(byParent[table], func(e Edge, _ int) bool { return !ancestors[e.Child] })
	kinds := lo.Uniq(lo.Map(edges, func(e Edge, _ int) relation.Kind { return e.Kind }))

	buf.WriteByte('{')
	for i, k := range kinds {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(buf, string(k)); err != nil {
			return err
		}
		buf.WriteByte('{')
		children := lo.Filter(edges, func(e Edge, _ int) bool { return e.Kind == k })
		for j, e := range children {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(buf, e.Child); err != nil {
				return err
			}
			if err := r.writeNode(buf, e.Child, byParent, ancestors); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	b, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("discovery: encode key %q: %w", key, err)
	}
	buf.Write(b)
	buf.WriteByte(':')
	return nil
}

// WriteReport prints tables, fields, inferred edges and duplicate-table
// candidates in a human-readable layout.
func (r *Result) WriteReport(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "collection %s: sampled %d of %d documents\n\n", r.Collection, r.Sampled, r.Total)

	for _, t := range r.Tables() {
		fmt.Fprintf(tw, "table %s\n", t.Name)
		fmt.Fprintln(tw, "  field\tunique\ttable\tlist\tpaths")
		for _, f := range t.Fields() {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
				f.Name, yesNo(f.Unique), yesNo(f.IsTable), yesNo(f.IsList), strings.Join(f.Paths(), ","))
		}
		fmt.Fprintln(tw)
	}

	edges := r.Relations()
	fmt.Fprintf(tw, "relations (%d)\n", len(edges))
	for _, e := range edges {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Parent, e.Kind, e.Child)
	}

	dups := r.DuplicateTables()
	if len(dups) > 0 {
		fmt.Fprintf(tw, "\npossible duplicate tables (%d)\n", len(dups))
		for _, g := range dups {
			fmt.Fprintf(tw, "  %s\n", strings.Join(g, ", "))
		}
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
