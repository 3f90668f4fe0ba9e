package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions controls the rotated log file written next to the console output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Output builds the writer handed to Init. With an empty path it is just
// os.Stderr; otherwise log lines go to both stderr and a lumberjack-rotated
// file. The returned closer must be called on shutdown.
func Output(opts FileOptions) (io.Writer, io.Closer, error) {
	if opts.Path == "" {
		return os.Stderr, nopCloser{}, nil
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return io.MultiWriter(os.Stderr, lj), lj, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
