package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ParseJSON decodes a single JSON value, preserving object key order.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("json: empty input")
		}
		return nil, fmt.Errorf("json: read first token: %w", err)
	}
	v, err := DecodeFromToken(dec, tok)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("json: trailing data after value")
	}
	return v, nil
}

// ParseObject is ParseJSON restricted to a root object.
func ParseObject(data []byte) (*Object, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("json: root is %T, want object", v)
	}
	return obj, nil
}

// DecodeFromToken builds the Value whose first token has already been read
// from dec. The decoder should have UseNumber enabled.
func DecodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return NormalizeScalar(tok)
	}

	switch d {
	case '{':
		obj := NewObject()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read object key: %w", err)
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("json: object key not string (got %T)", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read value token for %q: %w", k, err)
			}
			v, err := DecodeFromToken(dec, vt)
			if err != nil {
				return nil, err
			}
			obj.Set(k, v)
		}
		end, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read object end: %w", err)
		}
		if end != json.Delim('}') {
			return nil, fmt.Errorf("json: expected '}', got %v", end)
		}
		return obj, nil

	case '[':
		list := List{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read array value token: %w", err)
			}
			v, err := DecodeFromToken(dec, vt)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		end, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read array end: %w", err)
		}
		if end != json.Delim(']') {
			return nil, fmt.Errorf("json: expected ']', got %v", end)
		}
		return list, nil

	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
}
