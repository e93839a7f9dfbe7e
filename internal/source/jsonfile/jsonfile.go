// Package jsonfile is a Source over JSON files on disk.
//
// Config.Path is either a single file, which serves every collection name,
// or a directory holding one "<collection>.json" or "<collection>.jsonl" file
// per collection.
//
// A file may hold a root array of objects, a single object, or a sequence of
// objects (JSON Lines). Objects are decoded one at a time with key order
// preserved; the file is never loaded whole.
package jsonfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mongrel/internal/document"
	"mongrel/internal/relation"
	"mongrel/internal/source"
)

func init() {
	source.Register("jsonfile", New)
}

// Source reads documents from JSON files.
type Source struct {
	path  string
	isDir bool
}

// New validates cfg.Path.
func New(_ context.Context, cfg source.Config) (source.Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("jsonfile: missing path")
	}
	fi, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("jsonfile: %w", err)
	}
	return &Source{path: cfg.Path, isDir: fi.IsDir()}, nil
}

func (s *Source) Close(context.Context) error { return nil }

// Count streams the collection once and counts its documents.
func (s *Source) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.Iterate(ctx, collection, func(*document.Object) error {
		n++
		return nil
	})
	return n, err
}

func (s *Source) Iterate(ctx context.Context, collection string, fn func(*document.Object) error) error {
	name, err := s.file(collection)
	if err != nil {
		return err
	}
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}
	defer f.Close()

	return Stream(ctx, bufio.NewReaderSize(f, 1<<20), fn)
}

func (s *Source) file(collection string) (string, error) {
	if !s.isDir {
		return s.path, nil
	}
	for _, ext := range []string{".json", ".jsonl"} {
		p := filepath.Join(s.path, collection+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("jsonfile: no %s.json or %s.jsonl in %s", collection, collection, s.path)
}

// Stream decodes documents from r and calls fn for each.
//
// Streaming behavior:
//   - A root array streams each element; null elements are skipped and
//     non-object elements are an error.
//   - Root objects are emitted one by one until EOF (JSON Lines).
func Stream(ctx context.Context, r io.Reader, fn func(*document.Object) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	n := 0
	emit := func(v document.Value) error {
		n++
		if s, ok := v.(document.Scalar); ok && s.IsNull() {
			return nil
		}
		obj, ok := v.(*document.Object)
		if !ok {
			return fmt.Errorf("jsonfile: document %d is %T, want object", n, v)
		}
		if err := checkKeys(obj); err != nil {
			return fmt.Errorf("jsonfile: document %d: %w", n, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(obj)
	}

	// Peek the first token so a root array can be streamed element by element.
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("jsonfile: read first token: %w", err)
	}

	if tok == json.Delim('[') {
		for dec.More() {
			et, err := dec.Token()
			if err != nil {
				return fmt.Errorf("jsonfile: read array element: %w", err)
			}
			v, err := document.DecodeFromToken(dec, et)
			if err != nil {
				return err
			}
			if err := emit(v); err != nil {
				return err
			}
		}
		if end, err := dec.Token(); err != nil {
			return fmt.Errorf("jsonfile: read array end: %w", err)
		} else if end != json.Delim(']') {
			return fmt.Errorf("jsonfile: expected array end ']', got %v", end)
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return fmt.Errorf("jsonfile: trailing data after root array")
		}
		return nil
	}

	for {
		v, err := document.DecodeFromToken(dec, tok)
		if err != nil {
			return err
		}
		if err := emit(v); err != nil {
			return err
		}
		tok, err = dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("jsonfile: read document %d: %w", n+1, err)
		}
	}
}

// checkKeys rejects keys containing the path separator, which would make
// flattened paths ambiguous.
func checkKeys(v document.Value) error {
	switch t := v.(type) {
	case *document.Object:
		for _, k := range t.Keys() {
			if strings.Contains(k, relation.PathSeparator) {
				return fmt.Errorf("key %q contains a NUL byte", k)
			}
			child, _ := t.Get(k)
			if err := checkKeys(child); err != nil {
				return err
			}
		}
	case document.List:
		for _, e := range t {
			if err := checkKeys(e); err != nil {
				return err
			}
		}
	}
	return nil
}
