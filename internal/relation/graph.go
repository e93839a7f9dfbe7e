package relation

import (
	"fmt"

	"mongrel/internal/document"
)

// Graph is the insertion-ordered set of relations, keyed by Info.
type Graph struct {
	order []Info
	byKey map[Info]*Relation
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{byKey: make(map[Info]*Relation)}
}

// Add inserts r unless a relation with the same Info exists. It returns the
// relation stored in the graph and whether r was inserted.
func (g *Graph) Add(r *Relation) (*Relation, bool) {
	if cur, ok := g.byKey[r.Info]; ok {
		return cur, false
	}
	g.byKey[r.Info] = r
	g.order = append(g.order, r.Info)
	return r, true
}

// Ensure returns the relation for info, creating it if needed.
func (g *Graph) Ensure(info Info) *Relation {
	r, _ := g.Add(New(info))
	return r
}

// Get returns the relation for info.
func (g *Graph) Get(info Info) (*Relation, bool) {
	r, ok := g.byKey[info]
	return r, ok
}

// MustGet is Get for callers that already validated info against the graph.
func (g *Graph) MustGet(info Info) *Relation {
	r, ok := g.byKey[info]
	if !ok {
		panic(fmt.Sprintf("relation: %s not in graph", info))
	}
	return r
}

// Relations returns all relations in insertion order.
func (g *Graph) Relations() []*Relation {
	out := make([]*Relation, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.byKey[k])
	}
	return out
}

// Len returns the number of relations.
func (g *Graph) Len() int { return len(g.order) }

// AliasSiblings returns every relation writing to the same physical table as
// r, r included, in insertion order.
func (g *Graph) AliasSiblings(r *Relation) []*Relation {
	phys := r.Physical()
	var out []*Relation
	for _, k := range g.order {
		o := g.byKey[k]
		if o.Physical() == phys {
			out = append(out, o)
		}
	}
	return out
}

// BuildGraph parses a relation configuration: a nested JSON object whose keys
// alternate between table names and cardinality tokens, e.g.
//
//	{"tracks": {"n:1": {"artist": {}}, "n:m": {"genres": {}}}}
//
// Every root-to-leaf key path is walked. Each table key becomes a relation
// (once, however often the name recurs) and records an edge to its right
// neighbor with the path's kind and to its left neighbor with the inverse kind.
func BuildGraph(config []byte) (*Graph, error) {
	root, err := document.ParseObject(config)
	if err != nil {
		return nil, &ConfigurationError{Reason: "relation config: " + err.Error()}
	}

	var paths [][]string
	if err := collectPaths(root, nil, &paths); err != nil {
		return nil, err
	}

	g := NewGraph()
	for _, p := range paths {
		if len(p)%2 == 0 {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("relation config: path %v ends with a cardinality token", p)}
		}
		for i := 0; i < len(p); i += 2 {
			info := ParseInfo(p[i])
			if info.Table == "" {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("relation config: empty table name in path %v", p)}
			}
			if _, err := ParseKind(p[i]); err == nil {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("relation config: expected table name, got cardinality %q in path %v", p[i], p)}
			}
			r := g.Ensure(info)

			if i >= 2 {
				k, err := ParseKind(p[i-1])
				if err != nil {
					return nil, &ConfigurationError{Reason: "relation config: " + err.Error()}
				}
				r.AddEdge(k.Inverse(), ParseInfo(p[i-2]))
			}
			if i+2 < len(p) {
				k, err := ParseKind(p[i+1])
				if err != nil {
					return nil, &ConfigurationError{Reason: "relation config: " + err.Error()}
				}
				r.AddEdge(k, ParseInfo(p[i+2]))
			}
		}
	}
	return g, nil
}

func collectPaths(obj *document.Object, prefix []string, out *[][]string) error {
	if obj.Len() == 0 {
		if len(prefix) > 0 {
			*out = append(*out, append([]string(nil), prefix...))
		}
		return nil
	}
	for _, k := range obj.Keys() {
		child, _ := obj.Get(k)
		path := append(prefix[:len(prefix):len(prefix)], k)
		switch c := child.(type) {
		case *document.Object:
			if err := collectPaths(c, path, out); err != nil {
				return err
			}
		case document.Scalar:
			if !c.IsNull() {
				return &ConfigurationError{Reason: fmt.Sprintf("relation config: value at %v must be an object", path)}
			}
			*out = append(*out, path)
		default:
			return &ConfigurationError{Reason: fmt.Sprintf("relation config: value at %v must be an object", path)}
		}
	}
	return nil
}
