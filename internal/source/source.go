// Package source reads documents from a document store.
//
// Backends register themselves by kind from an init() function; commands
// select one through New with a Config taken from the runtime configuration.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"mongrel/internal/document"
)

// Config is everything a backend may need to open a source.
//
// Edge cases:
//   - Kind must match a registered backend.
//   - URI and Database are used by store-backed sources, Path by file-backed
//     ones; each backend validates its own fields.
type Config struct {
	Kind     string
	URI      string
	Database string
	Path     string
}

// Source is the document store documents are read from.
type Source interface {
	// Count returns the number of documents in collection.
	Count(ctx context.Context, collection string) (int64, error)

	// Iterate calls fn once per document of collection, in store order, and
	// stops at the first error fn returns. Documents are not retained after
	// fn returns.
	Iterate(ctx context.Context, collection string, fn func(doc *document.Object) error) error

	// Close releases the connection. Call once.
	Close(ctx context.Context) error
}

type factory func(ctx context.Context, cfg Config) (Source, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under kind (e.g. "mongo", "jsonfile").
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("source: Register called with empty kind")
	}
	if f == nil {
		panic("source: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("source: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Source using the registered backend factory.
func New(ctx context.Context, cfg Config) (Source, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("source: missing source kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported source kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
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

var errStop = errors.New("stop")

// First returns the first document of collection, or an error if it is empty.
func First(ctx context.Context, src Source, collection string) (*document.Object, error) {
	var first *document.Object
	err := src.Iterate(ctx, collection, func(doc *document.Object) error {
		first = doc
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if first == nil {
		return nil, fmt.Errorf("source: collection %q is empty", collection)
	}
	return first, nil
}

// Slice is an in-memory Source over fixed collections. It backs tests and
// small fixtures.
type Slice map[string][]*document.Object

func (s Slice) Count(_ context.Context, collection string) (int64, error) {
	return int64(len(s[collection])), nil
}

func (s Slice) Iterate(ctx context.Context, collection string, fn func(*document.Object) error) error {
	for _, d := range s[collection] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (s Slice) Close(context.Context) error { return nil }
