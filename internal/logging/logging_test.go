package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l, closeFn, err := New(Options{Level: "WARN", Console: &buf, NoColor: true})
	require.NoError(t, err)
	defer closeFn()

	l.Info().Msg("hidden")
	l.Warn().Str("table", "music.tracks").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "table=music.tracks")
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mongrel.log")
	var buf bytes.Buffer
	l, closeFn, err := New(Options{File: path, MaxSizeMB: 1, Console: &buf, NoColor: true})
	require.NoError(t, err)

	Printf{L: l}.Printf("stage=ddl ok statements=%d", 3)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasPrefix(line, "{"), "file sink writes JSON: %s", line)
	assert.Contains(t, line, `"message":"stage=ddl ok statements=3"`)
	assert.Contains(t, line, `"level":"info"`)
	assert.Contains(t, buf.String(), "stage=ddl ok statements=3")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}
