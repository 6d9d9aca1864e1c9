package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Logger is the logging interface used across the client.
type Logger interface {
	Info(msg string, obj any)
	Warn(msg string, obj any)
	Debug(msg string, obj any)
	Error(msg string, obj any)
}

// Level is the minimum severity a writer logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel maps a level name (case-insensitive) to a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// NopLogger discards all log messages.
type NopLogger struct{}

func (NopLogger) Info(string, any)  {}
func (NopLogger) Warn(string, any)  {}
func (NopLogger) Debug(string, any) {}
func (NopLogger) Error(string, any) {}

type writerLogger struct {
	w   io.Writer
	min Level
	now func() time.Time
}

func (l writerLogger) write(level Level, msg string, obj any) {
	if l.w == nil || level < l.min {
		return
	}

	ts := l.now().Format(time.RFC3339)
	if obj == nil {
		_, _ = fmt.Fprintf(l.w, "%s %-5s %s\n", ts, level, msg)
		return
	}

	b, err := json.Marshal(obj)
	if err != nil {
		_, _ = fmt.Fprintf(l.w, "%s %-5s %s obj=%q\n", ts, level, msg, fmt.Sprintf("%+v", obj))
		return
	}
	_, _ = fmt.Fprintf(l.w, "%s %-5s %s obj=%s\n", ts, level, msg, string(b))
}

// NewWriterLogger builds a logger that writes every level to an io.Writer.
func NewWriterLogger(w io.Writer) Logger {
	return NewLeveledLogger(w, LevelDebug)
}

// NewLeveledLogger builds a writer logger that drops entries below min.
func NewLeveledLogger(w io.Writer, min Level) Logger {
	return writerLogger{w: w, min: min, now: time.Now}
}

func (l writerLogger) Info(msg string, obj any)  { l.write(LevelInfo, msg, obj) }
func (l writerLogger) Warn(msg string, obj any)  { l.write(LevelWarn, msg, obj) }
func (l writerLogger) Debug(msg string, obj any) { l.write(LevelDebug, msg, obj) }
func (l writerLogger) Error(msg string, obj any) { l.write(LevelError, msg, obj) }

// Debug writes a debug log when enabled and logger is non-nil.
func Debug(enabled bool, logger Logger, msg string, obj any) {
	if !enabled || logger == nil {
		return
	}
	logger.Debug(msg, obj)
}

// Info writes an info log when logger is non-nil.
func Info(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Info(msg, obj)
}

// Warn writes a warning log when logger is non-nil.
func Warn(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Warn(msg, obj)
}

// Error writes an error log when logger is non-nil.
func Error(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Error(msg, obj)
}
