// Package document models source documents as a closed set of value shapes.
//
// Every document is a tree of three node kinds:
//   - Scalar: a leaf (nil, bool, int64, float64, string, time.Time, []byte)
//   - *Object: an ordered set of named children
//   - List: an ordered sequence of children
//
// Walkers (discovery, projection, flattening) switch over these three types
// and nothing else. Object keeps first-insertion key order so configuration
// documents decoded from JSON preserve their authored order.
package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Value is implemented by Scalar, *Object and List only.
type Value interface {
	isValue()
}

// Scalar is a leaf value. A zero Scalar is null.
type Scalar struct {
	V any
}

// Object is an insertion-ordered map of child values.
type Object struct {
	keys   []string
	fields map[string]Value
}

// List is an ordered sequence of child values.
type List []Value

func (Scalar) isValue()  {}
func (*Object) isValue() {}
func (List) isValue()    {}

// Null returns the null scalar.
func Null() Scalar { return Scalar{} }

// IsNull reports whether the scalar carries no value.
func (s Scalar) IsNull() bool { return s.V == nil }

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Set stores v under key. Re-setting an existing key keeps its original position.
func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// Get returns the child stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.fields[key]
	return v, ok
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// FromAny converts plain Go values (as produced by encoding/json or hand-built
// fixtures) into a Value. Map keys are sorted so the result is deterministic.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			child, err := FromAny(t[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, child)
		}
		return obj, nil
	case []any:
		out := make(List, 0, len(t))
		for i, e := range t {
			child, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, child)
		}
		return out, nil
	case []map[string]any:
		out := make(List, 0, len(t))
		for i, e := range t {
			child, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, child)
		}
		return out, nil
	}

	s, err := NormalizeScalar(v)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NormalizeScalar maps Go leaf types onto the scalar set: integers widen to
// int64, floats to float64, json.Number to whichever of the two parses.
func NormalizeScalar(v any) (Scalar, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool, string, int64, float64, []byte:
		return Scalar{V: t}, nil
	case time.Time:
		return Scalar{V: t.UTC()}, nil
	case int:
		return Scalar{V: int64(t)}, nil
	case int8:
		return Scalar{V: int64(t)}, nil
	case int16:
		return Scalar{V: int64(t)}, nil
	case int32:
		return Scalar{V: int64(t)}, nil
	case uint8:
		return Scalar{V: int64(t)}, nil
	case uint16:
		return Scalar{V: int64(t)}, nil
	case uint32:
		return Scalar{V: int64(t)}, nil
	case uint:
		return Scalar{V: int64(t)}, nil
	case uint64:
		return Scalar{V: int64(t)}, nil
	case float32:
		return Scalar{V: float64(t)}, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Scalar{V: i}, nil
		}
		f, err := t.Float64()
		if err != nil {
			return Scalar{}, fmt.Errorf("document: bad number %q: %w", t.String(), err)
		}
		return Scalar{V: f}, nil
	case fmt.Stringer:
		return Scalar{V: t.String()}, nil
	default:
		return Scalar{}, fmt.Errorf("document: unsupported value type %T", v)
	}
}

// ToAny converts a Value back into plain Go values. Objects become
// map[string]any, so key order is lost.
func ToAny(v Value) any {
	switch t := v.(type) {
	case Scalar:
		return t.V
	case *Object:
		m := make(map[string]any, t.Len())
		for _, k := range t.Keys() {
			child, _ := t.Get(k)
			m[k] = ToAny(child)
		}
		return m
	case List:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}
