// Package logging builds the zerolog logger used by the commands: a console
// writer on stderr plus an optional JSON file rotated by lumberjack.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level string
	// File enables the rotated JSON sink when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console overrides stderr; tests point it at a buffer.
	Console io.Writer
	NoColor bool
}

// New returns the logger and a close function for the file sink.
func New(opts Options) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("logging: %w", err)
		}
		level = l
	}

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime, NoColor: opts.NoColor}

	closeFn := func() error { return nil }
	var w io.Writer = console
	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		w = zerolog.MultiLevelWriter(console, rot)
		closeFn = rot.Close
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), closeFn, nil
}

// Printf adapts a zerolog logger to the Printf-style Logger interfaces of
// the library packages. Lines are logged at info level.
type Printf struct {
	L zerolog.Logger
}

func (p Printf) Printf(format string, v ...any) {
	p.L.Info().Msgf(format, v...)
}
