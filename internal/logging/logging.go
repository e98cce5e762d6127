// Package logging builds the process logger. Output goes to stderr unless a
// log file is configured, in which case it is rotated by size.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Stderr also copies file output to stderr.
	Stderr bool
}

// New returns a logger and a closer for its output.
func New(prefix string, opts Options) (*log.Logger, io.Closer) {
	if opts.File == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags), io.NopCloser(nil)
	}
	_ = os.MkdirAll(filepath.Dir(opts.File), 0o755)
	rot := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	var out io.Writer = rot
	if opts.Stderr {
		out = io.MultiWriter(rot, os.Stderr)
	}
	return log.New(out, prefix, log.LstdFlags|log.LUTC), rot
}
