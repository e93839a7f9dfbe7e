package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "mongrel/internal/source/csvfile"
	_ "mongrel/internal/source/jsonfile"
	_ "mongrel/internal/source/mongo"
	_ "mongrel/internal/storage/all"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_DefaultsOnly(t *testing.T) {
	c, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "mongo", c.Source.Kind)
	assert.Equal(t, "postgres", c.Destination.Kind)
	assert.Equal(t, 1000, c.Runtime.BatchSize)
	assert.Equal(t, " ", c.Runtime.Placeholder)
	assert.Equal(t, 1.0, c.Runtime.Cutoff)
	assert.Equal(t, 1e-9, c.Runtime.FalsePositive)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 60*time.Second, c.Metrics.FlushEvery)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mongrel.yaml", `
source:
  kind: jsonfile
  path: ./songs.jsonl
  collection: songs
destination:
  kind: sqlite
  dsn: /tmp/music.db
runtime:
  batch_size: 50
  conflict: truncate
metrics:
  backend: datadog
  flush_every: 15s
  tags: "team:data,service:mongrel"
`)
	t.Setenv("MONGREL_RUNTIME_BATCH_SIZE", "250")
	t.Setenv("MONGREL_DESTINATION_DSN", "/var/lib/music.db")

	c, err := Load(Options{Path: path, EnvFile: filepath.Join(dir, "none.env")})
	require.NoError(t, err)

	assert.Equal(t, "jsonfile", c.Source.Kind)
	assert.Equal(t, "songs", c.Source.Collection)
	assert.Equal(t, "sqlite", c.Destination.Kind)
	assert.Equal(t, "/var/lib/music.db", c.Destination.DSN)
	assert.Equal(t, 250, c.Runtime.BatchSize)
	assert.Equal(t, "truncate", c.Runtime.Conflict)
	assert.Equal(t, 15*time.Second, c.Metrics.FlushEvery)
	assert.Equal(t, "team:data,service:mongrel", c.Metrics.Tags)
	assert.Empty(t, Validate(*c))
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "MONGREL_SOURCE_DATABASE=spotify\n")
	t.Cleanup(func() { _ = os.Unsetenv("MONGREL_SOURCE_DATABASE") })

	c, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "spotify", c.Source.Database)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(Options{Path: filepath.Join(dir, "missing.yaml"), EnvFile: filepath.Join(dir, "x.env")})
	require.Error(t, err)

	bad := writeFile(t, dir, "bad.yaml", "source: [unclosed\n")
	_, err = Load(Options{Path: bad, EnvFile: filepath.Join(dir, "x.env")})
	require.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "runtime.batch_size", envKey("MONGREL_RUNTIME_BATCH_SIZE"))
	assert.Equal(t, "log.max_age_days", envKey("MONGREL_LOG_MAX_AGE_DAYS"))
	assert.Equal(t, "source.uri", envKey("MONGREL_SOURCE_URI"))
}

func TestValidate(t *testing.T) {
	valid := Config{
		Source:      Source{Kind: "mongo", URI: "mongodb://localhost"},
		Destination: Destination{Kind: "postgres", DSN: "postgres://localhost/db"},
		Runtime:     Runtime{BatchSize: 10, Conflict: "drop", Cutoff: 0.5, FalsePositive: 0.01},
		Log:         Log{Level: "debug"},
		Metrics:     Metrics{Backend: "none"},
	}
	assert.Empty(t, Validate(valid))

	broken := valid
	broken.Source.Kind = "couch"
	broken.Destination.Kind = "oracle"
	broken.Runtime = Runtime{BatchSize: 0, Conflict: "merge", Cutoff: 1.5, FalsePositive: 1}
	broken.Log.Level = "loud"
	broken.Metrics.Backend = "statsd"

	issues := Validate(broken)
	require.True(t, HasErrors(issues))
	var paths []string
	for _, i := range issues {
		if i.Severity == SeverityError {
			paths = append(paths, i.Path)
		}
	}
	assert.ElementsMatch(t, []string{
		"source.kind", "destination.kind", "runtime.batch_size", "runtime.conflict",
		"runtime.cutoff", "runtime.false_positive", "log.level", "metrics.backend",
	}, paths)

	warn := valid
	warn.Destination.DSN = ""
	issues = Validate(warn)
	require.Len(t, issues, 1)
	assert.False(t, HasErrors(issues))
	assert.Equal(t, "warning: destination.dsn: empty; transfer will fail to connect", issues[0].String())
}

func TestReadMapping(t *testing.T) {
	dir := t.TempDir()
	c := Config{Mapping: Mapping{
		Relations: writeFile(t, dir, "relations.json", `{"tracks": {}}`),
		Columns:   writeFile(t, dir, "mapping.json", `{"tracks": {"_id": "_id INTEGER"}}`),
	}}
	rel, cols, err := c.ReadMapping()
	require.NoError(t, err)
	assert.JSONEq(t, `{"tracks": {}}`, string(rel))
	assert.Contains(t, string(cols), "_id INTEGER")

	_, _, err = (&Config{}).ReadMapping()
	require.Error(t, err)
}
