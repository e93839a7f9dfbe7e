package relation

import (
	"fmt"
	"slices"
)

// Relation is a table-to-be: its identity, cardinality edges to other
// relations, its columns and an optional alias naming the physical table it
// shares with sibling relations.
//
// Lifecycle: created with edges only, columns added from the mapping, then
// Prepare inherits foreign-key columns exactly once.
type Relation struct {
	Info    Info
	Alias   Info
	Columns []Column

	edges    map[Kind][]Info
	kinds    []Kind
	prepared bool
	junction bool
}

// New returns a relation with no edges and no columns.
func New(info Info) *Relation {
	return &Relation{Info: info, edges: make(map[Kind][]Info)}
}

// NewJunction returns the relation materializing an n:m edge between left
// and right. It lives in left's schema and is named "{left}2{right}" after
// the physical table names of both sides.
func NewJunction(left, right *Relation) *Relation {
	j := New(Info{
		Schema: left.Info.Schema,
		Table:  left.Physical().Table + "2" + right.Physical().Table,
	})
	j.junction = true
	j.AddEdge(ManyToOne, left.Info)
	j.AddEdge(ManyToOne, right.Info)
	return j
}

// AddEdge records an edge of kind k to target. Duplicate edges are ignored;
// the return value reports whether the edge was new.
func (r *Relation) AddEdge(k Kind, target Info) bool {
	if r.edges == nil {
		r.edges = make(map[Kind][]Info)
	}
	cur, ok := r.edges[k]
	if !ok {
		r.kinds = append(r.kinds, k)
	}
	if slices.Contains(cur, target) {
		return false
	}
	r.edges[k] = append(cur, target)
	return true
}

// Targets returns the edge targets of kind k in insertion order.
func (r *Relation) Targets(k Kind) []Info { return r.edges[k] }

// Kinds returns the edge kinds present, in first-seen order.
func (r *Relation) Kinds() []Kind { return r.kinds }

// Physical returns the table the relation's rows land in: the alias if set.
func (r *Relation) Physical() Info {
	if !r.Alias.IsZero() {
		return r.Alias
	}
	return r.Info
}

// IsJunction reports whether the relation was synthesized for an n:m edge.
func (r *Relation) IsJunction() bool { return r.junction }

// Prepared reports whether Prepare has run.
func (r *Relation) Prepared() bool { return r.prepared }

// Column returns the column named name.
func (r *Relation) Column(name string) (Column, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether a column named name exists.
func (r *Relation) HasColumn(name string) bool {
	_, ok := r.Column(name)
	return ok
}

// AddColumn appends c. Column names are unique within a relation.
func (r *Relation) AddColumn(c Column) error {
	if r.HasColumn(c.Name) {
		return fmt.Errorf("%s: duplicate column %q", r.Info, c.Name)
	}
	r.Columns = append(r.Columns, c)
	return nil
}

// PrimaryKey returns the primary-key columns in column order.
func (r *Relation) PrimaryKey() []Column {
	var out []Column
	for _, c := range r.Columns {
		if c.IsPrimaryKey() {
			out = append(out, c)
		}
	}
	return out
}

// Prepare inherits one column per primary-key column of every n:1 target,
// named "{target table}_{column}" after the target's physical table. The
// inherited column reads the target's document path and reuses its SQL
// definition. Junction relations inherit as primary keys, everything else as
// foreign keys.
//
// Targets must already be prepared if their own keys are inherited. Prepare
// runs at most once; later calls are no-ops.
func (r *Relation) Prepare(g *Graph) error {
	if r.prepared {
		return nil
	}
	role := RoleForeignKey
	if r.junction {
		role = RolePrimaryKey
	}

	for _, t := range r.Targets(ManyToOne) {
		other, ok := g.Get(t)
		if !ok {
			return fmt.Errorf("%s: n:1 target %s is not a known relation", r.Info, t)
		}
		ref := other.Physical()
		pk := other.PrimaryKey()
		if len(pk) == 0 {
			return fmt.Errorf("%s: n:1 target %s declares no primary key to reference", r.Info, t)
		}
		for _, oc := range pk {
			name := ref.Table + "_" + oc.Name
			if r.HasColumn(name) {
				continue
			}
			c := NewColumn(name, oc.Path, oc.Definition, role)
			c.References = ref
			c.Conversion = oc.Conversion
			r.Columns = append(r.Columns, c)
		}
	}
	r.prepared = true
	return nil
}
