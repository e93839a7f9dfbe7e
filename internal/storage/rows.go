package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeKey converts a key value to a canonical string form, suitable for
// in-memory dedupe keys (e.g. "Germany" or "8429529").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps dedupe consistent across backends.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []byte:
		return strings.TrimSpace(string(t))
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DedupeRows keeps the first row for every distinct key. Rows are returned in
// their original order. An empty key returns rows unchanged.
func DedupeRows(columns, key []string, rows [][]any) ([][]any, error) {
	if len(key) == 0 || len(rows) < 2 {
		return rows, nil
	}
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	idx := make([]int, len(key))
	for i, k := range key {
		p, ok := pos[k]
		if !ok {
			return nil, fmt.Errorf("dedupe: key column %q not present in columns", k)
		}
		idx[i] = p
	}

	seen := make(map[string]struct{}, len(rows))
	out := rows[:0:0]
	var b strings.Builder
	for _, r := range rows {
		b.Reset()
		for _, i := range idx {
			s := NormalizeKey(r[i])
			b.WriteString(strconv.Itoa(len(s)))
			b.WriteByte(':')
			b.WriteString(s)
		}
		k := b.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// Chunks splits rows so no statement binds more than maxParams parameters.
func Chunks(rows [][]any, columns, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := maxParams / max(1, columns)
	if per < 1 {
		per = 1
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
