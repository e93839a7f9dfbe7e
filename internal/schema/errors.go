package schema

import (
	"strings"

	"github.com/samber/lo"

	"mongrel/internal/relation"
)

// ConfigurationError is raised for a malformed mapping or relation graph.
type ConfigurationError = relation.ConfigurationError

// DependencyCycleError reports the physical tables whose foreign keys form a
// cycle (or depend on one). No DDL is produced when it is returned.
type DependencyCycleError struct {
	Tables []relation.Info
}

func (e *DependencyCycleError) Error() string {
	names := lo.Map(e.Tables, func(t relation.Info, _ int) string { return t.String() })
	return "dependency cycle in n:1 relations, no foreign key order exists for: " + strings.Join(names, ", ")
}
