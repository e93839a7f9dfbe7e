package schema

import (
	"fmt"
	"strings"

	"mongrel/internal/convert"
	"mongrel/internal/document"
	"mongrel/internal/relation"
)

// Reserved keys of a mapping entry.
const (
	keyTransferOptions  = "transfer_options"
	keyReferenceKeys    = "reference_keys"
	keyConversionFields = "conversion_fields"
	keyAlias            = "alias"
	keySourceType       = "source_type"
	keyTargetType       = "target_type"
	keyArgs             = "args"

	primaryKeyMarker = "PK"
)

// applyMapping parses the mapping document and adds the declared columns (and
// alias) of every relation in g. Each relation must have an entry.
//
// A mapping entry looks like:
//
//	"music.tracks": {
//	  "_id": "_id INTEGER",
//	  "name": "name TEXT",
//	  "album.release_date": "release_date DATE",
//	  "alias": "music.track",
//	  "transfer_options": {
//	    "reference_keys": {"_id": "PK"},
//	    "conversion_fields": {
//	      "release_date": {"source_type": "string", "target_type": "date"}
//	    }
//	  }
//	}
//
// Keys are dot-separated document paths; values are "name SQL DEFINITION".
func applyMapping(g *relation.Graph, mapping []byte) error {
	root, err := document.ParseObject(mapping)
	if err != nil {
		return &ConfigurationError{Reason: "mapping: " + err.Error()}
	}

	for _, r := range g.Relations() {
		raw, ok := root.Get(r.Info.String())
		if !ok {
			return &ConfigurationError{Relation: r.Info.String(), Reason: "the mapping has no entry for this relation"}
		}
		entry, ok := raw.(*document.Object)
		if !ok {
			return &ConfigurationError{Relation: r.Info.String(), Reason: "mapping entry must be an object"}
		}
		if err := applyEntry(r, entry); err != nil {
			return err
		}
	}
	return nil
}

func applyEntry(r *relation.Relation, entry *document.Object) error {
	rel := r.Info.String()

	keys, convs, err := transferOptions(rel, entry)
	if err != nil {
		return err
	}

	for _, path := range entry.Keys() {
		v, _ := entry.Get(path)
		switch path {
		case keyTransferOptions:
			continue
		case keyAlias:
			s, ok := scalarString(v)
			if !ok || strings.TrimSpace(s) == "" {
				return &ConfigurationError{Relation: rel, Reason: `"alias" must be a "schema.table" string`}
			}
			r.Alias = relation.ParseInfo(s)
			continue
		}

		spec, ok := scalarString(v)
		if !ok {
			return &ConfigurationError{Relation: rel, Reason: fmt.Sprintf("column for path %q must be a string", path)}
		}
		name, def, err := relation.ParseColumnSpec(spec)
		if err != nil {
			return &ConfigurationError{Relation: rel, Reason: err.Error()}
		}
		if r.HasColumn(name) {
			continue
		}

		role := relation.RoleBase
		if marker, ok := keys[name]; ok && strings.HasPrefix(strings.TrimSpace(marker), primaryKeyMarker) {
			role = relation.RolePrimaryKey
		}

		c := relation.NewColumn(name, relation.SplitPath(strings.TrimSpace(path)), def, role)
		if raw, ok := convs[name]; ok {
			conv, err := parseConversion(raw)
			if err != nil {
				return &ConfigurationError{Relation: rel, Column: name, Reason: err.Error()}
			}
			c.Conversion = conv
		}
		if err := r.AddColumn(c); err != nil {
			return &ConfigurationError{Relation: rel, Column: name, Reason: err.Error()}
		}
	}
	return nil
}

// transferOptions extracts reference_keys (column -> marker string) and
// conversion_fields (column -> conversion object).
func transferOptions(rel string, entry *document.Object) (map[string]string, map[string]*document.Object, error) {
	keys := map[string]string{}
	convs := map[string]*document.Object{}

	raw, ok := entry.Get(keyTransferOptions)
	if !ok {
		return keys, convs, nil
	}
	opts, ok := raw.(*document.Object)
	if !ok {
		return nil, nil, &ConfigurationError{Relation: rel, Reason: `"transfer_options" must be an object`}
	}

	if raw, ok := opts.Get(keyReferenceKeys); ok {
		obj, ok := raw.(*document.Object)
		if !ok {
			return nil, nil, &ConfigurationError{Relation: rel, Reason: `"reference_keys" must be an object`}
		}
		for _, col := range obj.Keys() {
			v, _ := obj.Get(col)
			// Non-string markers are reserved and treated as ordinary columns.
			if s, ok := scalarString(v); ok {
				keys[col] = s
			}
		}
	}

	if raw, ok := opts.Get(keyConversionFields); ok {
		obj, ok := raw.(*document.Object)
		if !ok {
			return nil, nil, &ConfigurationError{Relation: rel, Reason: `"conversion_fields" must be an object`}
		}
		for _, col := range obj.Keys() {
			v, _ := obj.Get(col)
			c, ok := v.(*document.Object)
			if !ok {
				return nil, nil, &ConfigurationError{Relation: rel, Column: col, Reason: "conversion definition must be an object"}
			}
			convs[col] = c
		}
	}
	return keys, convs, nil
}

func parseConversion(def *document.Object) (convert.Conversion, error) {
	source, err := requiredString(def, keySourceType)
	if err != nil {
		return convert.Conversion{}, err
	}
	target, err := requiredString(def, keyTargetType)
	if err != nil {
		return convert.Conversion{}, err
	}

	var args convert.Args
	if raw, ok := def.Get(keyArgs); ok {
		switch a := raw.(type) {
		case *document.Object:
			args, _ = document.ToAny(a).(map[string]any)
		case document.Scalar:
			if !a.IsNull() {
				return convert.Conversion{}, fmt.Errorf("%q must be an object", keyArgs)
			}
		default:
			return convert.Conversion{}, fmt.Errorf("%q must be an object", keyArgs)
		}
	}
	return convert.New(source, target, args)
}

func requiredString(obj *document.Object, key string) (string, error) {
	v, ok := obj.Get(key)
	if !ok {
		return "", fmt.Errorf("%s not found in conversion definition", key)
	}
	s, ok := scalarString(v)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

func scalarString(v document.Value) (string, bool) {
	s, ok := v.(document.Scalar)
	if !ok {
		return "", false
	}
	str, ok := s.V.(string)
	return str, ok
}
