package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// VerboseChecker interface for checking verbose state
type VerboseChecker interface {
	IsVerbose() bool
}

// Logger provides structured logging with verbose support. Records are
// written through a log/slog handler; Debug and Info are dropped unless the
// verbose checker says otherwise.
type Logger struct {
	component      string
	verboseChecker VerboseChecker
	handler        slog.Handler
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// Format selects the slog handler used for output
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// NewHandler builds the handler for a format. Unknown formats fall back to text.
func NewHandler(format Format, w io.Writer) slog.Handler {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var defaultHandler slog.Handler = NewHandler(FormatText, os.Stderr)

// SetDefaultHandler replaces the handler used by loggers created afterwards
func SetDefaultHandler(h slog.Handler) {
	if h != nil {
		defaultHandler = h
	}
}

// New creates a new logger instance
func New(component string, verboseChecker VerboseChecker) *Logger {
	return &Logger{
		component:      component,
		verboseChecker: verboseChecker,
		handler:        defaultHandler,
	}
}

// NewWithCallback creates a new logger instance with a callback function
func NewWithCallback(component string, verboseCheck func() bool) *Logger {
	return New(component, &callbackChecker{callback: verboseCheck})
}

// NewWithHandler creates a logger writing to a specific handler
func NewWithHandler(component string, verboseChecker VerboseChecker, h slog.Handler) *Logger {
	l := New(component, verboseChecker)
	if h != nil {
		l.handler = h
	}
	return l
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewWithHandler("", nil, slog.NewTextHandler(io.Discard, nil))
}

// WithComponent creates a logger with a specific component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		component:      component,
		verboseChecker: l.verboseChecker,
		handler:        l.handler,
	}
}

// callbackChecker implements VerboseChecker with a callback function
type callbackChecker struct {
	callback func() bool
}

func (c *callbackChecker) IsVerbose() bool {
	if c.callback == nil {
		return false
	}
	return c.callback()
}

// Verbose is a VerboseChecker with a fixed answer
type Verbose bool

func (v Verbose) IsVerbose() bool { return bool(v) }

// Debug logs debug messages (only when verbose=true)
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.verbose() {
		l.log(slog.LevelDebug, msg, nil, args...)
	}
}

// Info logs informational messages (only when verbose=true)
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.verbose() {
		l.log(slog.LevelInfo, msg, nil, args...)
	}
}

// Warn logs warning messages (always shown)
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(slog.LevelWarn, msg, nil, args...)
}

// Error logs error messages (always shown)
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(slog.LevelError, msg, nil, args...)
}

// DebugWithFields logs debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields []Field, args ...interface{}) {
	if l.verbose() {
		l.log(slog.LevelDebug, msg, fields, args...)
	}
}

// InfoWithFields logs info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields []Field, args ...interface{}) {
	if l.verbose() {
		l.log(slog.LevelInfo, msg, fields, args...)
	}
}

// WarnWithFields logs a warning with structured fields
func (l *Logger) WarnWithFields(msg string, fields []Field, args ...interface{}) {
	l.log(slog.LevelWarn, msg, fields, args...)
}

func (l *Logger) verbose() bool {
	return l.verboseChecker != nil && l.verboseChecker.IsVerbose()
}

func (l *Logger) log(level slog.Level, msg string, fields []Field, args ...interface{}) {
	if l == nil || l.handler == nil {
		return
	}
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}

	component := l.component
	if component == "" {
		component = "main"
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	record := slog.NewRecord(time.Now(), level, msg, 0)
	record.AddAttrs(slog.String("component", component))
	for _, field := range fields {
		record.AddAttrs(slog.Any(field.Key, field.Value))
	}
	// A failed log write has nowhere else to go
	_ = l.handler.Handle(ctx, record)
}

// Helper functions for common field types
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

func Count(value int) Field {
	return Field{Key: "count", Value: value}
}

func Duration(d time.Duration) Field {
	return Field{Key: "duration", Value: d}
}

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

func Path(p string) Field {
	return Field{Key: "path", Value: p}
}

func Revision(rev uint64) Field {
	return Field{Key: "revision", Value: rev}
}
