package transfer

import (
	"maps"

	"mongrel/internal/document"
	"mongrel/internal/relation"
)

// pathTrie holds the document paths one relation reads. A projected
// document keeps only the keys on some path.
type pathTrie struct {
	children map[string]*pathTrie
}

func newPathTrie(paths ...[]string) *pathTrie {
	root := &pathTrie{}
	for _, p := range paths {
		root.insert(p)
	}
	return root
}

func (t *pathTrie) insert(path []string) {
	n := t
	for _, key := range path {
		if n.children == nil {
			n.children = make(map[string]*pathTrie)
		}
		next, ok := n.children[key]
		if !ok {
			next = &pathTrie{}
			n.children[key] = next
		}
		n = next
	}
}

func (t *pathTrie) leaf() bool { return len(t.children) == 0 }

// project drops every branch of v that no path in t reaches. Lists are
// transparent: each element is projected against the same node. Values at
// the end of a path are kept whole.
func project(v document.Value, t *pathTrie) document.Value {
	if t.leaf() {
		return v
	}
	switch x := v.(type) {
	case *document.Object:
		out := document.NewObject()
		for _, k := range x.Keys() {
			child, ok := t.children[k]
			if !ok {
				continue
			}
			val, _ := x.Get(k)
			out.Set(k, project(val, child))
		}
		return out
	case document.List:
		out := make(document.List, len(x))
		for i, e := range x {
			out[i] = project(e, t)
		}
		return out
	default:
		// A scalar where the path expects more structure reads as missing.
		return document.NewObject()
	}
}

// row is one flattened record keyed by translated path.
type row map[string]any

// flatten turns v into rows, one per combination of list elements. Keys are
// document paths joined by relation.PathSeparator. An empty list contributes
// nothing rather than erasing its siblings.
func flatten(v document.Value) []row {
	return flattenAt("", v)
}

func flattenAt(prefix string, v document.Value) []row {
	switch x := v.(type) {
	case *document.Object:
		rows := []row{{}}
		for _, k := range x.Keys() {
			child, _ := x.Get(k)
			sub := flattenAt(joinKey(prefix, k), child)
			if len(sub) == 0 {
				continue
			}
			rows = cross(rows, sub)
		}
		return rows
	case document.List:
		var rows []row
		for _, e := range x {
			rows = append(rows, flattenAt(prefix, e)...)
		}
		return rows
	case document.Scalar:
		return []row{{prefix: x.V}}
	default:
		return nil
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + relation.PathSeparator + key
}

// cross returns the cartesian product of left and right, merging each pair.
func cross(left, right []row) []row {
	if len(right) == 1 {
		for _, l := range left {
			maps.Copy(l, right[0])
		}
		return left
	}
	out := make([]row, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			m := make(row, len(l)+len(r))
			maps.Copy(m, l)
			maps.Copy(m, r)
			out = append(out, m)
		}
	}
	return out
}
