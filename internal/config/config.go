// Package config loads the runtime configuration of the mongrel commands.
//
// Precedence, lowest first: built-in defaults, the YAML file, then
// environment variables prefixed MONGREL_ (optionally seeded from a .env
// file). An environment key maps onto the first-level section at its first
// underscore: MONGREL_RUNTIME_BATCH_SIZE sets runtime.batch_size.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MONGREL_"

// Config is the full runtime configuration.
type Config struct {
	Source      Source      `koanf:"source"`
	Destination Destination `koanf:"destination"`
	Mapping     Mapping     `koanf:"mapping"`
	Runtime     Runtime     `koanf:"runtime"`
	Log         Log         `koanf:"log"`
	Metrics     Metrics     `koanf:"metrics"`
}

// Source selects the document store.
type Source struct {
	Kind       string `koanf:"kind"`
	URI        string `koanf:"uri"`
	Database   string `koanf:"database"`
	Collection string `koanf:"collection"`
	// Path is the file or directory read by the jsonfile and csvfile sources.
	Path string `koanf:"path"`
}

// Destination selects the relational store.
type Destination struct {
	Kind string `koanf:"kind"`
	DSN  string `koanf:"dsn"`
}

// Mapping points at the two JSON configuration documents.
type Mapping struct {
	Relations string `koanf:"relations"`
	Columns   string `koanf:"columns"`
}

// Runtime tunes discovery and transfer.
type Runtime struct {
	BatchSize     int     `koanf:"batch_size"`
	Placeholder   string  `koanf:"placeholder"`
	Conflict      string  `koanf:"conflict"`
	Cutoff        float64 `koanf:"cutoff"`
	FalsePositive float64 `koanf:"false_positive"`
}

// Log configures the console and optional rotated file logger.
type Log struct {
	Level      string `koanf:"level"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// Metrics selects the metrics backend ("none" or "datadog").
type Metrics struct {
	Backend string `koanf:"backend"`
	Job     string `koanf:"job"`
	// Tags is a comma-separated list such as "team:data,service:mongrel".
	Tags       string        `koanf:"tags"`
	FlushEvery time.Duration `koanf:"flush_every"`
}

// Defaults are applied before the file and the environment.
func Defaults() map[string]any {
	return map[string]any{
		"source.kind":            "mongo",
		"destination.kind":       "postgres",
		"runtime.batch_size":     1000,
		"runtime.placeholder":    " ",
		"runtime.conflict":       "none",
		"runtime.cutoff":         1.0,
		"runtime.false_positive": 1e-9,
		"log.level":              "info",
		"log.max_size_mb":        100,
		"log.max_backups":        3,
		"log.max_age_days":       7,
		"metrics.backend":        "none",
		"metrics.job":            "mongrel",
		"metrics.flush_every":    "60s",
	}
}

// Options controls Load.
type Options struct {
	// Path is the YAML file. Empty means defaults plus environment only.
	Path string
	// EnvFile is loaded into the process environment when it exists.
	// Defaults to ".env".
	EnvFile string
}

// Load builds a Config from defaults, the YAML file and the environment.
//
// Errors:
//   - A missing or malformed YAML file when Path is set.
//   - A malformed .env file. A missing one is ignored.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", opts.Path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &c, nil
}

// envKey maps MONGREL_RUNTIME_BATCH_SIZE to runtime.batch_size.
func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

func loadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// ReadMapping reads the relation configuration and the column mapping.
func (c *Config) ReadMapping() (relations, columns []byte, err error) {
	if c.Mapping.Relations == "" || c.Mapping.Columns == "" {
		return nil, nil, errors.New("config: mapping.relations and mapping.columns are required")
	}
	relations, err = os.ReadFile(c.Mapping.Relations)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read relations: %w", err)
	}
	columns, err = os.ReadFile(c.Mapping.Columns)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read columns: %w", err)
	}
	return relations, columns, nil
}
