// Package schema turns a relation graph plus a column mapping into physical
// tables and the DDL that creates them in foreign-key order.
package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"mongrel/internal/relation"
	"mongrel/internal/storage"
)

// Options configures Build.
type Options struct {
	// Dialect renders the statements. Required.
	Dialect storage.Dialect
	// Conflict selects the reset statements emitted around the DDL.
	Conflict ConflictMode
}

// Table is one physical table: every relation writing into it (alias
// siblings, in graph order) and the physical tables it references.
type Table struct {
	Spec         storage.TableSpec
	Relations    []*relation.Relation
	Dependencies []relation.Info
}

// Name is the physical table identity.
func (t *Table) Name() relation.Info { return t.Spec.Name }

// Columns returns the column names in DDL order.
func (t *Table) Columns() []string {
	return lo.Map(t.Spec.Columns, func(c storage.ColumnSpec, _ int) string { return c.Name })
}

// Plan is the validated result of Build.
type Plan struct {
	Graph *relation.Graph
	// Tables in creation order: every table after the tables it references.
	Tables []*Table
	// Statements are the CREATE SCHEMA and CREATE TABLE statements, in order.
	Statements []string

	dialect  storage.Dialect
	conflict ConflictMode
}

// Table returns the physical table named info.
func (p *Plan) Table(info relation.Info) (*Table, bool) {
	for _, t := range p.Tables {
		if t.Spec.Name == info {
			return t, true
		}
	}
	return nil, false
}

// ResetStatements returns the statements the conflict mode adds, dependents
// before their dependencies: DROP TABLE for drop, a clear statement for
// truncate, nothing for none.
func (p *Plan) ResetStatements() []string {
	if p.conflict == ConflictNone {
		return nil
	}
	out := make([]string, 0, len(p.Tables))
	for i := len(p.Tables) - 1; i >= 0; i-- {
		name := p.Tables[i].Spec.Name
		switch p.conflict {
		case ConflictDrop:
			out = append(out, p.dialect.DropTable(name))
		case ConflictTruncate:
			out = append(out, p.dialect.ClearTable(name))
		}
	}
	return out
}

// Sequence is every statement to execute before rows move: drops come before
// the DDL, clears after it.
func (p *Plan) Sequence() []string {
	reset := p.ResetStatements()
	out := make([]string, 0, len(reset)+len(p.Statements))
	if p.conflict == ConflictDrop {
		out = append(out, reset...)
	}
	out = append(out, p.Statements...)
	if p.conflict == ConflictTruncate {
		out = append(out, reset...)
	}
	return out
}

// Script renders Sequence as one ";"-separated SQL script.
func (p *Plan) Script() string {
	seq := p.Sequence()
	if len(seq) == 0 {
		return ""
	}
	return strings.Join(seq, ";\n\n") + ";\n"
}

// Build applies the mapping to g, synthesizes junction relations for n:m
// edges, orders physical tables so every table follows the tables it
// references, and renders the DDL.
//
// g is modified in place: columns, aliases and junction relations are added.
//
// Errors:
//   - *ConfigurationError for a missing or malformed mapping entry, an
//     unknown conversion or an edge to an unknown relation.
//   - *DependencyCycleError when the n:1 edges between physical tables form
//     a cycle.
func Build(g *relation.Graph, mapping []byte, opts Options) (*Plan, error) {
	if opts.Dialect == nil {
		return nil, fmt.Errorf("schema: no dialect")
	}
	if err := applyMapping(g, mapping); err != nil {
		return nil, err
	}
	if err := addJunctions(g); err != nil {
		return nil, err
	}

	groups, err := groupPhysical(g)
	if err != nil {
		return nil, err
	}
	ordered, err := sortTables(groups)
	if err != nil {
		return nil, err
	}

	p := &Plan{Graph: g, dialect: opts.Dialect, conflict: opts.Conflict}
	for _, t := range ordered {
		for _, r := range t.Relations {
			if err := r.Prepare(g); err != nil {
				return nil, &ConfigurationError{Relation: r.Info.String(), Reason: err.Error()}
			}
		}
		if err := fillSpec(g, t); err != nil {
			return nil, err
		}
		p.Tables = append(p.Tables, t)
	}

	seen := map[string]bool{}
	for _, t := range p.Tables {
		s := t.Spec.Name.Schema
		if seen[s] {
			continue
		}
		seen[s] = true
		if stmt := opts.Dialect.CreateSchema(s); stmt != "" {
			p.Statements = append(p.Statements, stmt)
		}
	}
	for _, t := range p.Tables {
		p.Statements = append(p.Statements, opts.Dialect.CreateTable(t.Spec))
	}
	return p, nil
}

// addJunctions adds one junction relation per n:m edge. Back-reference edges
// (m:n) never produce a junction, so each pair is materialized once.
func addJunctions(g *relation.Graph) error {
	for _, r := range g.Relations() {
		for _, t := range r.Targets(relation.ManyToMany) {
			other, ok := g.Get(t)
			if !ok {
				return &ConfigurationError{Relation: r.Info.String(), Reason: fmt.Sprintf("n:m target %s is not a known relation", t)}
			}
			g.Add(relation.NewJunction(r, other))
		}
	}
	return nil
}

// groupPhysical collapses alias siblings into one table per physical name, in
// order of first appearance, and resolves each table's dependencies.
// References from a table to itself are kept in the DDL but are not ordering
// dependencies.
func groupPhysical(g *relation.Graph) ([]*Table, error) {
	var out []*Table
	byName := map[relation.Info]*Table{}
	for _, r := range g.Relations() {
		phys := r.Physical()
		t, ok := byName[phys]
		if !ok {
			t = &Table{Spec: storage.TableSpec{Name: phys}}
			byName[phys] = t
			out = append(out, t)
		}
		t.Relations = append(t.Relations, r)
	}

	for _, t := range out {
		if err := checkSiblingKeys(t); err != nil {
			return nil, err
		}
	}

	for _, t := range out {
		for _, r := range t.Relations {
			for _, target := range r.Targets(relation.ManyToOne) {
				other, ok := g.Get(target)
				if !ok {
					return nil, &ConfigurationError{Relation: r.Info.String(), Reason: fmt.Sprintf("n:1 target %s is not a known relation", target)}
				}
				dep := other.Physical()
				if dep == t.Spec.Name || lo.Contains(t.Dependencies, dep) {
					continue
				}
				t.Dependencies = append(t.Dependencies, dep)
			}
		}
	}
	return out, nil
}

// checkSiblingKeys requires alias siblings to declare the same primary-key
// column names. A foreign key into the shared table references one sibling's
// key, and that is only unique when it is the whole physical key.
func checkSiblingKeys(t *Table) error {
	if len(t.Relations) < 2 {
		return nil
	}
	keyOf := func(r *relation.Relation) []string {
		names := lo.Map(r.PrimaryKey(), func(c relation.Column, _ int) string { return c.Name })
		slices.Sort(names)
		return names
	}
	first := t.Relations[0]
	want := keyOf(first)
	for _, r := range t.Relations[1:] {
		if got := keyOf(r); !slices.Equal(got, want) {
			return &ConfigurationError{
				Relation: r.Info.String(),
				Reason: fmt.Sprintf("alias %s: primary key (%s) differs from %s's (%s)",
					t.Spec.Name, strings.Join(got, ", "), first.Info, strings.Join(want, ", ")),
			}
		}
	}
	return nil
}

// sortTables is Kahn's algorithm over the dependency edges. Ties keep
// first-appearance order, so tables without dependencies come first in graph
// order. Tables left over sit on or behind a cycle.
func sortTables(tables []*Table) ([]*Table, error) {
	index := make(map[relation.Info]int, len(tables))
	for i, t := range tables {
		index[t.Spec.Name] = i
	}

	indegree := make([]int, len(tables))
	dependents := make([][]int, len(tables))
	for i, t := range tables {
		for _, d := range t.Dependencies {
			j := index[d]
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	queue := make([]int, 0, len(tables))
	for i := range tables {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	out := make([]*Table, 0, len(tables))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		out = append(out, tables[i])
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(out) != len(tables) {
		var stuck []relation.Info
		for i, t := range tables {
			if indegree[i] > 0 {
				stuck = append(stuck, t.Spec.Name)
			}
		}
		return nil, &DependencyCycleError{Tables: stuck}
	}
	return out, nil
}

// fillSpec renders the table body from prepared siblings: the union of
// their columns (first definition wins), the union of their primary-key
// columns and one foreign key per distinct referenced column set.
func fillSpec(g *relation.Graph, t *Table) error {
	spec := &t.Spec
	seen := map[string]bool{}
	fks := map[string]bool{}

	for _, r := range t.Relations {
		for _, c := range r.Columns {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			spec.Columns = append(spec.Columns, storage.ColumnSpec{Name: c.Name, Definition: c.Definition})
			if c.IsPrimaryKey() {
				spec.PrimaryKey = append(spec.PrimaryKey, c.Name)
			}
		}

		for _, target := range r.Targets(relation.ManyToOne) {
			other := g.MustGet(target)
			ref := other.Physical()
			refCols := lo.Map(other.PrimaryKey(), func(c relation.Column, _ int) string { return c.Name })
			cols := lo.Map(refCols, func(n string, _ int) string { return ref.Table + "_" + n })

			key := ref.String() + "\x00" + strings.Join(cols, "\x00")
			if fks[key] {
				continue
			}
			fks[key] = true
			spec.ForeignKeys = append(spec.ForeignKeys, storage.ForeignKeySpec{
				Columns:    cols,
				References: ref,
				RefColumns: refCols,
			})
		}
	}

	if len(spec.Columns) == 0 {
		return &ConfigurationError{Relation: spec.Name.String(), Reason: "table has no columns"}
	}
	return nil
}
