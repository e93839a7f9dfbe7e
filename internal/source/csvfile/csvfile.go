// Package csvfile is a document source over CSV files with a header row.
//
// Header names are dotted document paths: a column "album.title" becomes the
// field title of the sub-document album. Cells are strings; mapping
// conversions type them. Empty cells are null.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
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
	source.Register("csvfile", New)
}

// Source reads documents from CSV files. A directory path holds one
// <collection>.csv per collection.
type Source struct {
	path  string
	isDir bool
}

// New validates cfg.Path.
func New(_ context.Context, cfg source.Config) (source.Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("csvfile: missing path")
	}
	fi, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("csvfile: %w", err)
	}
	return &Source{path: cfg.Path, isDir: fi.IsDir()}, nil
}

func (s *Source) Close(context.Context) error { return nil }

// Count streams the collection once and counts its records.
func (s *Source) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.Iterate(ctx, collection, func(*document.Object) error {
		n++
		return nil
	})
	return n, err
}

func (s *Source) Iterate(ctx context.Context, collection string, fn func(*document.Object) error) error {
	name := s.path
	if s.isDir {
		name = filepath.Join(s.path, collection+".csv")
	}
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("csvfile: %w", err)
	}
	defer f.Close()

	return Stream(ctx, bufio.NewReaderSize(f, 1<<20), fn)
}

// Stream decodes CSV records from r and calls fn with one document per record.
//
// Header handling:
//   - A leading UTF-8 BOM is dropped and names are trimmed.
//   - A name that is both a leaf and a prefix of another ("a" and "a.b") is
//     an error, as are an empty path part and a NUL byte.
//
// Short records leave the missing trailing fields absent.
func Stream(ctx context.Context, r io.Reader, fn func(*document.Object) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	line := 1
	hdr, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("csvfile: read header: %w", err)
	}
	paths, err := headerPaths(hdr)
	if err != nil {
		return err
	}
	cr.ReuseRecord = true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("csvfile: line %d: %w", line, err)
		}

		doc := document.NewObject()
		for i, p := range paths {
			if i >= len(rec) {
				break
			}
			setPath(doc, p, cell(rec[i]))
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

func cell(v string) document.Scalar {
	v = strings.TrimSpace(v)
	if v == "" {
		return document.Null()
	}
	return document.Scalar{V: v}
}

func headerPaths(hdr []string) ([][]string, error) {
	paths := make([][]string, len(hdr))
	leaves := map[string]bool{}
	prefixes := map[string]bool{}
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if strings.Contains(h, relation.PathSeparator) {
			return nil, fmt.Errorf("csvfile: header %q contains a NUL byte", h)
		}
		parts := strings.Split(h, ".")
		for _, p := range parts {
			if p == "" {
				return nil, fmt.Errorf("csvfile: header %q has an empty path part", h)
			}
		}
		for j := 1; j < len(parts); j++ {
			prefixes[strings.Join(parts[:j], ".")] = true
		}
		if leaves[h] {
			return nil, fmt.Errorf("csvfile: duplicate header %q", h)
		}
		leaves[h] = true
		paths[i] = parts
	}
	for h := range leaves {
		if prefixes[h] {
			return nil, fmt.Errorf("csvfile: header %q is both a value and a sub-document", h)
		}
	}
	return paths, nil
}

func setPath(doc *document.Object, path []string, v document.Value) {
	cur := doc
	for _, p := range path[:len(path)-1] {
		next, ok := cur.Get(p)
		child, isObj := next.(*document.Object)
		if !ok || !isObj {
			child = document.NewObject()
			cur.Set(p, child)
		}
		cur = child
	}
	cur.Set(path[len(path)-1], v)
}
