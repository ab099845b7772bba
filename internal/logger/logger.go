// Package logger provides the leveled, structured log sink used by vcalc.
//
// A Logger is an explicit handle: it is constructed once at startup and passed
// to every component that logs. There is no package-level default instance.
//
// Text output follows the format
//
//	[2006-01-02 15:04:05] [LEVEL] message key=value ...
//
// and every line is written with a single guarded Write call, so concurrent
// sessions never interleave partial lines.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path

	// Console mirrors file output to stdout. Ignored when Output is stdout or stderr.
	Console bool
}

// Logger is a leveled structured logger bound to one output sink.
type Logger struct {
	slog   *slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New builds a Logger from cfg. When Output names a file, it is opened in
// append mode and created if missing; the returned Logger owns the file and
// releases it on Close.
func New(cfg Config) (*Logger, error) {
	var (
		w        io.Writer
		closer   io.Closer
		useColor bool
	)

	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		w = os.Stdout
		useColor = isTerminal(os.Stdout)
	case "stderr":
		w = os.Stderr
		useColor = isTerminal(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		closer = f
		w = f
		if cfg.Console {
			w = io.MultiWriter(os.Stdout, f)
		}
	}

	l := NewWithWriter(w, cfg.Level, cfg.Format, useColor)
	l.closer = closer
	return l, nil
}

// NewWithWriter builds a Logger writing to w. Invalid level or format values
// fall back to INFO and text.
func NewWithWriter(w io.Writer, level, format string, useColor bool) *Logger {
	levelVar := new(slog.LevelVar)
	if lvl, ok := ParseLevel(level); ok {
		levelVar.Set(lvl)
	}

	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = NewTextHandler(w, opts, useColor)
	}

	return &Logger{
		slog:  slog.New(handler),
		level: levelVar,
	}
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, "ERROR", "text", false)
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to slog levels.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// SetLevel changes the minimum level. Unknown names are ignored.
func (l *Logger) SetLevel(level string) {
	if lvl, ok := ParseLevel(level); ok {
		l.level.Set(lvl)
	}
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level slog.Level) bool {
	return level >= l.level.Level()
}

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs at info level with structured fields
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs at warn level with structured fields
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs at error level with structured fields
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a child Logger that prefixes every record with args.
// The child shares the parent's level and output.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:  l.slog.With(args...),
		level: l.level,
	}
}

// Close releases the log file, if any. Child loggers created by With do not
// own the file and Close on them is a no-op.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
