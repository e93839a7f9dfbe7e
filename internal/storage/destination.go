package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mongrel/internal/relation"
)

// Config is the minimal configuration needed to open a destination.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Destination is the relational store rows are transferred into.
//
// Each backend implements insert-or-ignore in its own way: Postgres ON
// CONFLICT DO NOTHING, SQLite OR IGNORE, MySQL INSERT IGNORE and SQL Server
// NOT EXISTS.
type Destination interface {
	// Dialect renders DDL for this backend.
	Dialect() Dialect

	// Exec runs a single DDL statement.
	Exec(ctx context.Context, stmt string) error

	// InsertRows appends rows to table, silently dropping rows that collide with
	// an existing primary key. key names the primary-key columns (a subset of
	// columns); backends that cannot lean on a native conflict clause use it
	// to dedupe. It returns the number of rows actually inserted.
	InsertRows(ctx context.Context, table relation.Info, columns []string, key []string, rows [][]any) (int64, error)

	// Close releases backend resources. Call once.
	Close()
}

type factory func(ctx context.Context, cfg Config) (Destination, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
	dialects  = map[string]Dialect{}
)

// Register registers a backend under kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f or d is nil, or kind is already registered. Failing
//     fast avoids ambiguous backend selection.
func Register(kind string, d Dialect, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if d == nil {
		panic("storage: Register called with nil dialect")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
	dialects[kind] = d
}

// New opens a Destination using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Destination, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing destination kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported destination kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// DialectFor returns the dialect of a registered backend without connecting,
// so DDL can be rendered offline.
func DialectFor(kind string) (Dialect, error) {
	mu.RLock()
	d := dialects[kind]
	mu.RUnlock()

	if d == nil {
		return nil, fmt.Errorf("unsupported destination kind=%s (registered: %v)", kind, Kinds())
	}
	return d, nil
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
