package mongo

import (
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"mongrel/internal/document"
)

func fromD(d bson.D) (*document.Object, error) {
	obj := document.NewObject()
	for _, e := range d {
		v, err := fromBSON(e.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Key, err)
		}
		obj.Set(e.Key, v)
	}
	return obj, nil
}

// fromBSON maps driver values onto document values. BSON-specific scalars
// become plain strings or times:
//   - ObjectID -> hex string
//   - DateTime, Timestamp -> UTC time.Time
//   - Decimal128 -> its decimal string
//   - Binary -> its bytes
func fromBSON(v any) (document.Value, error) {
	switch t := v.(type) {
	case nil, bson.Null, bson.Undefined:
		return document.Null(), nil
	case bson.D:
		return fromD(t)
	case bson.M:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := document.NewObject()
		for _, k := range keys {
			child, err := fromBSON(t[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, child)
		}
		return obj, nil
	case bson.A:
		return fromList(t)
	case []any:
		return fromList(t)
	case bson.ObjectID:
		return document.Scalar{V: t.Hex()}, nil
	case bson.DateTime:
		return document.Scalar{V: t.Time().UTC()}, nil
	case bson.Timestamp:
		return document.Scalar{V: time.Unix(int64(t.T), 0).UTC()}, nil
	case bson.Decimal128:
		return document.Scalar{V: t.String()}, nil
	case bson.Binary:
		return document.Scalar{V: t.Data}, nil
	case bson.Symbol:
		return document.Scalar{V: string(t)}, nil
	case bson.JavaScript:
		return document.Scalar{V: string(t)}, nil
	case bson.Regex:
		return document.Scalar{V: "/" + t.Pattern + "/" + t.Options}, nil
	}
	return document.NormalizeScalar(v)
}

func fromList(in []any) (document.Value, error) {
	out := make(document.List, 0, len(in))
	for i, e := range in {
		child, err := fromBSON(e)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, child)
	}
	return out, nil
}
