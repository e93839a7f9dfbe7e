package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// AppendCanonical appends a type-tagged, length-prefixed encoding of v to b.
//
// Two values encode identically iff they are structurally equal: same type
// tags, same scalar contents, and (for objects) the same key set with equal
// children regardless of key order. Integers and strings never collide
// ("1" vs 1), and float64 values that are whole numbers still encode as floats.
func AppendCanonical(b []byte, v Value) []byte {
	switch t := v.(type) {
	case nil:
		return append(b, 'n')
	case Scalar:
		return appendCanonicalScalar(b, t.V)
	case *Object:
		keys := append([]string(nil), t.Keys()...)
		sort.Strings(keys)
		b = append(b, 'o')
		b = strconv.AppendInt(b, int64(len(keys)), 10)
		b = append(b, '{')
		for _, k := range keys {
			b = appendLenString(b, k)
			child, _ := t.Get(k)
			b = AppendCanonical(b, child)
		}
		return append(b, '}')
	case List:
		b = append(b, 'l')
		b = strconv.AppendInt(b, int64(len(t)), 10)
		b = append(b, '[')
		for _, e := range t {
			b = AppendCanonical(b, e)
		}
		return append(b, ']')
	default:
		return append(b, fmt.Sprintf("?%T", v)...)
	}
}

// Canonical returns AppendCanonical(nil, v).
func Canonical(v Value) []byte {
	return AppendCanonical(nil, v)
}

func appendCanonicalScalar(b []byte, v any) []byte {
	switch t := v.(type) {
	case nil:
		return append(b, 'n')
	case bool:
		if t {
			return append(b, 'b', '1')
		}
		return append(b, 'b', '0')
	case int64:
		b = append(b, 'i')
		return strconv.AppendInt(b, t, 10)
	case float64:
		b = append(b, 'f')
		if math.IsNaN(t) {
			return append(b, "NaN"...)
		}
		return strconv.AppendFloat(b, t, 'g', -1, 64)
	case string:
		b = append(b, 's')
		return appendLenString(b, t)
	case []byte:
		b = append(b, 'x')
		b = strconv.AppendInt(b, int64(len(t)), 10)
		b = append(b, ':')
		return append(b, t...)
	case time.Time:
		b = append(b, 't')
		return t.UTC().AppendFormat(b, time.RFC3339Nano)
	default:
		// Scalars built outside NormalizeScalar; fall back to a tagged %v.
		b = append(b, 'v')
		return appendLenString(b, fmt.Sprintf("%T:%v", v, v))
	}
}

func appendLenString(b []byte, s string) []byte {
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, ':')
	return append(b, s...)
}

// String renders a scalar for human-facing output and string conversions.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
