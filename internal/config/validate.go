package config

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"mongrel/internal/schema"
	"mongrel/internal/source"
	"mongrel/internal/storage"
)

// Severity grades an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding at a config key path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Validate reports problems in c. Source and destination kinds are checked
// against the registered backends, so callers must import them first.
func Validate(c Config) []Issue {
	var out []Issue
	errorf := func(path, format string, a ...any) {
		out = append(out, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		out = append(out, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if kinds := source.Kinds(); !slices.Contains(kinds, c.Source.Kind) {
		errorf("source.kind", "unknown source %q (registered: %v)", c.Source.Kind, kinds)
	}
	switch c.Source.Kind {
	case "mongo":
		if c.Source.URI == "" {
			warnf("source.uri", "empty; commands reading documents will fail")
		}
	case "jsonfile", "csvfile":
		if c.Source.Path == "" {
			warnf("source.path", "empty; commands reading documents will fail")
		}
	}

	if kinds := storage.Kinds(); !slices.Contains(kinds, c.Destination.Kind) {
		errorf("destination.kind", "unknown destination %q (registered: %v)", c.Destination.Kind, kinds)
	}
	if c.Destination.DSN == "" && c.Destination.Kind != "sqlite" {
		warnf("destination.dsn", "empty; transfer will fail to connect")
	}

	if c.Runtime.BatchSize <= 0 {
		errorf("runtime.batch_size", "must be positive, got %d", c.Runtime.BatchSize)
	}
	if _, err := schema.ParseConflictMode(c.Runtime.Conflict); err != nil {
		errorf("runtime.conflict", "%v", err)
	}
	if c.Runtime.Cutoff <= 0 || c.Runtime.Cutoff > 1 {
		errorf("runtime.cutoff", "must be in (0,1], got %v", c.Runtime.Cutoff)
	}
	if c.Runtime.FalsePositive <= 0 || c.Runtime.FalsePositive >= 1 {
		errorf("runtime.false_positive", "must be in (0,1), got %v", c.Runtime.FalsePositive)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errorf("log.level", "%v", err)
	}

	switch c.Metrics.Backend {
	case "", "none":
	case "datadog":
		if c.Metrics.FlushEvery < 0 {
			errorf("metrics.flush_every", "must not be negative")
		}
	default:
		errorf("metrics.backend", "unknown backend %q (want none or datadog)", c.Metrics.Backend)
	}
	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Severity == SeverityError })
}
