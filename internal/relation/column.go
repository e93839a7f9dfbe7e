package relation

import (
	"fmt"
	"strings"
	"unicode"

	"mongrel/internal/convert"
)

// PathSeparator joins path segments into a Column's TranslatedPath. Document
// field names never contain NUL (BSON keys are C strings, and the JSON and CSV
// sources reject such keys), so joined paths cannot collide.
const PathSeparator = "\x00"

// Column is one target column and the document path it is read from.
type Column struct {
	Name string
	// Path is the sequence of document keys from the document root.
	Path []string
	// TranslatedPath is Path joined by PathSeparator; it keys flattened rows.
	TranslatedPath string
	// Definition is the SQL type definition as written in the mapping.
	Definition string
	Role       Role
	// References is set on columns inherited from an n:1 target.
	References Info
	Conversion convert.Conversion
}

// NewColumn builds a column and its translated path.
func NewColumn(name string, path []string, definition string, role Role) Column {
	return Column{
		Name:           name,
		Path:           path,
		TranslatedPath: JoinPath(path),
		Definition:     definition,
		Role:           role,
	}
}

// JoinPath joins path segments with PathSeparator.
func JoinPath(path []string) string {
	return strings.Join(path, PathSeparator)
}

// SplitPath splits a dotted document path ("album.artists.id").
func SplitPath(dotted string) []string {
	return strings.Split(strings.TrimSpace(dotted), ".")
}

// IsPrimaryKey reports whether the column is part of the table's primary key.
func (c Column) IsPrimaryKey() bool { return c.Role == RolePrimaryKey }

// ParseColumnSpec splits "name SQL DEFINITION" at the first run of whitespace.
func ParseColumnSpec(spec string) (name, definition string, err error) {
	spec = strings.TrimSpace(spec)
	i := strings.IndexFunc(spec, unicode.IsSpace)
	if i <= 0 {
		return "", "", fmt.Errorf("column %q must look like \"name TYPE DEFINITION\"", spec)
	}
	name = spec[:i]
	definition = strings.TrimSpace(spec[i:])
	if definition == "" {
		return "", "", fmt.Errorf("column %q has no type definition", spec)
	}
	return name, definition, nil
}
