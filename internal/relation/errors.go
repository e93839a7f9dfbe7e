package relation

import "strings"

// ConfigurationError reports a malformed relation configuration or mapping.
// It is always fatal and raised before any data moves.
type ConfigurationError struct {
	Relation string
	Column   string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Relation != "" {
		b.WriteString(" in ")
		b.WriteString(e.Relation)
		if e.Column != "" {
			b.WriteString(".")
			b.WriteString(e.Column)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}
