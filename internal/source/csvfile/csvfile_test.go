package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongrel/internal/document"
	"mongrel/internal/source"
)

func collect(t *testing.T, in string) ([]*document.Object, error) {
	t.Helper()
	var out []*document.Object
	err := Stream(context.Background(), strings.NewReader(in), func(d *document.Object) error {
		out = append(out, d)
		return nil
	})
	return out, err
}

func TestStream_NestsDottedHeaders(t *testing.T) {
	docs, err := collect(t, "\uFEFF_id, album.title ,album.year,genre\n1,Blue, 1971 ,\n2,Red,1999,rock\n")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	d := docs[0]
	assert.Equal(t, []string{"_id", "album", "genre"}, d.Keys())
	assert.Equal(t, map[string]any{
		"_id":   "1",
		"album": map[string]any{"title": "Blue", "year": "1971"},
		"genre": nil,
	}, document.ToAny(d))

	v, _ := docs[1].Get("genre")
	assert.Equal(t, document.Scalar{V: "rock"}, v)
}

func TestStream_ShortRecordsAndEmptyInput(t *testing.T) {
	docs, err := collect(t, "a,b\n1\n")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"a"}, docs[0].Keys())

	docs, err = collect(t, "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStream_HeaderErrors(t *testing.T) {
	for name, in := range map[string]string{
		"empty part":       "a..b\n1\n",
		"duplicate":        "a,a\n1,2\n",
		"leaf and prefix":  "a,a.b\n1,2\n",
		"trailing dot":     "a.\n1\n",
		"nul byte":         "a\x00b,c\n1,2\n",
		"unterminated row": "a\n\"1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := collect(t, in)
			require.Error(t, err)
		})
	}
}

func TestSource_DirectoryAndCount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "songs.csv"), []byte("_id,artist.name\n1,X\n2,Y\n"), 0o644))

	src, err := source.New(context.Background(), source.Config{Kind: "csvfile", Path: dir})
	require.NoError(t, err)
	defer src.Close(context.Background())

	n, err := src.Count(context.Background(), "songs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	first, err := source.First(context.Background(), src, "songs")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_id": "1", "artist": map[string]any{"name": "X"}}, document.ToAny(first))

	_, err = src.Count(context.Background(), "albums")
	require.Error(t, err)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), source.Config{})
	require.Error(t, err)
	_, err = New(context.Background(), source.Config{Path: filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)
}
