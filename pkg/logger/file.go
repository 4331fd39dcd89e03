package logger

import (
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the rotating file backend.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileLogger writes levelled lines to a size-rotated log file.
type FileLogger struct {
	*StandardLogger
	out *lumberjack.Logger
}

// NewFileLogger opens (lazily, on first write) the log file at opts.Path.
func NewFileLogger(opts FileOptions) *FileLogger {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 30
	}
	out := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return &FileLogger{
		StandardLogger: NewStandardLogger(log.New(out, "", log.LstdFlags)),
		out:            out,
	}
}

// Close closes the current log file.
func (f *FileLogger) Close() error {
	return f.out.Close()
}

var _ Logger = (*FileLogger)(nil)
