// Package relation is the table model shared by the DDL builder and the
// transfer engine: table identities, cardinality edges, columns and the
// graph that ties them together.
package relation

import (
	"fmt"
	"strings"
)

// Info identifies a table by schema and name.
//
// Info is comparable and may be used as a map key directly; String() is the
// canonical "schema.table" form used in configuration documents and logs.
type Info struct {
	Schema string
	Table  string
}

// ParseInfo splits "schema.table". Extra leading qualifiers are dropped, a
// bare name yields an empty schema.
func ParseInfo(s string) Info {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 1 {
		return Info{Table: parts[0]}
	}
	return Info{Schema: parts[len(parts)-2], Table: parts[len(parts)-1]}
}

// String returns "schema.table", or the bare table when the schema is empty.
func (i Info) String() string {
	if i.Schema == "" {
		return i.Table
	}
	return i.Schema + "." + i.Table
}

// IsZero reports whether i names nothing.
func (i Info) IsZero() bool { return i.Schema == "" && i.Table == "" }

// Kind is a cardinality token as written in relation configurations.
type Kind string

const (
	OneToOne   Kind = "1:1"
	OneToMany  Kind = "1:n"
	ManyToOne  Kind = "n:1"
	ManyToMany Kind = "n:m"

	// ManyToManyBack is the textual inverse of ManyToMany. It is recorded on
	// the right-hand side of an n:m edge and never synthesizes a junction.
	ManyToManyBack Kind = "m:n"
)

// ParseKind accepts the four configuration tokens (and the n:m back-reference).
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.TrimSpace(s)); k {
	case OneToOne, OneToMany, ManyToOne, ManyToMany, ManyToManyBack:
		return k, nil
	default:
		return "", fmt.Errorf("unknown cardinality %q (want 1:1, 1:n, n:1 or n:m)", s)
	}
}

// Inverse reverses the token textually: "1:n" <-> "n:1", "n:m" <-> "m:n".
func (k Kind) Inverse() Kind {
	l, r, ok := strings.Cut(string(k), ":")
	if !ok {
		return k
	}
	return Kind(r + ":" + l)
}

// Role is the key role of a column.
type Role uint8

const (
	RoleBase Role = iota
	RolePrimaryKey
	RoleForeignKey
)

func (r Role) String() string {
	switch r {
	case RolePrimaryKey:
		return "PRIMARY_KEY"
	case RoleForeignKey:
		return "FOREIGN_KEY"
	default:
		return "BASE"
	}
}
