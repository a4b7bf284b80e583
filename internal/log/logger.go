// Package log is the structured logger shared by the CLI and the analysis
// pipeline. It wraps zerolog behind a small key/value interface.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps "debug", "info", "warn" or "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger interface defines structured logging methods. Args are key/value
// pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
	// With returns a logger that adds args to every entry.
	With(args ...interface{}) Logger
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	NoColor    bool
	Stderr     io.Writer
}

// DefaultLogger is the zerolog-backed Logger.
type DefaultLogger struct {
	mu     sync.Mutex
	cfg    LoggerConfig
	fields []interface{}
	zl     zerolog.Logger
}

var (
	defaultLogger *DefaultLogger
	once          sync.Once
)

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	l := &DefaultLogger{cfg: cfg}
	l.rebuild()
	return l
}

// Default returns the default logger instance
func Default() *DefaultLogger {
	once.Do(func() {
		defaultLogger = New(LoggerConfig{Level: InfoLevel, NoColor: os.Getenv("NO_COLOR") != ""})
	})
	return defaultLogger
}

// Nop returns a logger that discards everything.
func Nop() *DefaultLogger {
	return New(LoggerConfig{Stderr: io.Discard, Level: ErrorLevel, JSONOutput: true})
}

// rebuild recreates the zerolog logger; callers hold mu or own l.
func (l *DefaultLogger) rebuild() {
	var w io.Writer = l.cfg.Stderr
	if !l.cfg.JSONOutput {
		w = zerolog.ConsoleWriter{Out: l.cfg.Stderr, NoColor: l.cfg.NoColor, TimeFormat: time.DateTime}
	}
	ctx := zerolog.New(w).Level(l.cfg.Level.zerolog()).With().Timestamp()
	if len(l.fields) > 0 {
		ctx = ctx.Fields(l.fields)
	}
	l.zl = ctx.Logger()
}

func (l *DefaultLogger) log(level zerolog.Level, msg string, args []interface{}) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()

	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if len(args)%2 != 0 {
		msg = fmt.Sprintf("%s %v", msg, args[0])
		args = args[1:]
	}
	e.Fields(args).Msg(msg)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.log(zerolog.DebugLevel, msg, args)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.log(zerolog.InfoLevel, msg, args)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.log(zerolog.WarnLevel, msg, args)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.log(zerolog.ErrorLevel, msg, args)
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.Level = level
	l.rebuild()
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.JSONOutput = enabled
	l.rebuild()
}

// With returns a child logger carrying args on every entry.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &DefaultLogger{
		cfg:    l.cfg,
		fields: append(append([]interface{}(nil), l.fields...), args...),
	}
	child.rebuild()
	return child
}

var _ Logger = (*DefaultLogger)(nil)
