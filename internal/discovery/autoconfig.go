package discovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mongrel/internal/document"
)

// Column type guesses written by BuildMapping.
const (
	TypeBoolean = "BOOLEAN"
	TypeInteger = "INTEGER"
	TypeFloat   = "FLOAT"
	TypeText    = "CHARACTER VARYING (1023)"
)

// BuildMapping writes a column mapping skeleton for root from one example
// document. Every leaf becomes an entry keyed by its dotted path; lists
// contribute their first element only. The column name is the last two path
// parts joined by "_" and the type is guessed from the value.
//
//	{"songs": {"album.title": "album_title CHARACTER VARYING (1023)"}}
func BuildMapping(root string, example *document.Object) ([]byte, error) {
	if root == "" {
		return nil, errors.New("discovery: mapping root is required")
	}
	if example == nil {
		return nil, errors.New("discovery: example document is required")
	}

	var leaves []leaf
	collectLeaves(example, nil, &leaves)

	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeKey(&buf, root); err != nil {
		return nil, err
	}
	buf.WriteByte('{')
	seen := map[string]bool{}
	n := 0
	for _, l := range leaves {
		dotted := strings.Join(l.path, ".")
		if seen[dotted] {
			continue
		}
		seen[dotted] = true
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		if err := writeKey(&buf, dotted); err != nil {
			return nil, err
		}
		spec, err := json.Marshal(columnName(l.path) + " " + guessType(l.value))
		if err != nil {
			return nil, fmt.Errorf("discovery: encode column %s: %w", dotted, err)
		}
		buf.Write(spec)
	}
	buf.WriteString("}}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return nil, fmt.Errorf("discovery: mapping: %w", err)
	}
	return out.Bytes(), nil
}

// RelationSkeleton is the relation configuration matching BuildMapping:
// the root table alone.
func RelationSkeleton(root string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeKey(&buf, root); err != nil {
		return nil, err
	}
	buf.WriteString("{}}")
	return buf.Bytes(), nil
}

type leaf struct {
	path  []string
	value document.Scalar
}

func collectLeaves(v document.Value, path []string, out *[]leaf) {
	switch t := v.(type) {
	case *document.Object:
		for _, k := range t.Keys() {
			child, _ := t.Get(k)
			collectLeaves(child, append(path[:len(path):len(path)], k), out)
		}
	case document.List:
		if len(t) > 0 {
			collectLeaves(t[0], path, out)
		}
	case document.Scalar:
		if len(path) > 0 {
			*out = append(*out, leaf{path: path, value: t})
		}
	}
}

func columnName(path []string) string {
	if len(path) >= 2 {
		return path[len(path)-2] + "_" + path[len(path)-1]
	}
	return path[len(path)-1]
}

func guessType(s document.Scalar) string {
	switch s.V.(type) {
	case bool:
		return TypeBoolean
	case int64:
		return TypeInteger
	case float64:
		return TypeFloat
	default:
		return TypeText
	}
}
