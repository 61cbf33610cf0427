// Package logging builds the slog loggers used by every portmap service.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where a component logger writes.
type Options struct {
	Name     string // component name, attached to every record
	Dir      string // log directory; empty disables file output
	File     string // file name inside Dir
	Level    slog.Level
	MaxBytes int64 // rotate after this many bytes; <=0 keeps a single growing file
	Backups  int
	Console  bool
}

// New returns a logger writing text records to the rotating file and, optionally, stdout.
// The returned closer releases the file handle.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if opts.Dir != "" && opts.File != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, opts.File),
			MaxBackups: opts.Backups,
		}
		if opts.MaxBytes > 0 {
			// lumberjack rotates in whole megabytes
			mb := int(opts.MaxBytes / (1024 * 1024))
			if mb < 1 {
				mb = 1
			}
			lj.MaxSize = mb
		} else {
			lj.MaxSize = 1 << 20
		}
		writers = append(writers, lj)
		closer = lj
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	h := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: opts.Level})
	logger := slog.New(h)
	if opts.Name != "" {
		logger = logger.With("component", opts.Name)
	}
	return logger, closer, nil
}

// ParseLevel accepts debug, info, warn/warning, error (any case).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
