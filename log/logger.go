package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/kataras/golog"
)

// LogLevel represents logging severity
type LogLevel int

const (
	// LogLevelDebug for detailed debugging information
	LogLevelDebug LogLevel = iota
	// LogLevelInfo for general informational messages
	LogLevelInfo
	// LogLevelWarn for warning messages
	LogLevelWarn
	// LogLevelError for error messages
	LogLevelError
	// LogLevelNone disables all logging
	LogLevelNone
)

// Logger is the logging surface used by agents, model clients and stores.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error", "none")
// into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off", "disable":
		return LogLevelNone, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LevelFromVerbosity maps an agent verbosity (0 = errors only, 1 = info,
// 2 = debug) to a LogLevel. Negative values turn logging off.
func LevelFromVerbosity(verbosity int) LogLevel {
	switch {
	case verbosity < 0:
		return LogLevelNone
	case verbosity == 0:
		return LogLevelError
	case verbosity == 1:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// Debug does nothing
func (l *NoOpLogger) Debug(format string, v ...any) {}

// Info does nothing
func (l *NoOpLogger) Info(format string, v ...any) {}

// Warn does nothing
func (l *NoOpLogger) Warn(format string, v ...any) {}

// Error does nothing
func (l *NoOpLogger) Error(format string, v ...any) {}

type prefixLogger struct {
	prefix string
	next   Logger
}

// WithPrefix returns a Logger that prepends "[prefix] " to every message.
func WithPrefix(logger Logger, prefix string) Logger {
	if logger == nil {
		logger = GetDefaultLogger()
	}
	if prefix == "" {
		return logger
	}
	return &prefixLogger{prefix: "[" + prefix + "] ", next: logger}
}

func (l *prefixLogger) Debug(format string, v ...any) { l.next.Debug(l.prefix+format, v...) }
func (l *prefixLogger) Info(format string, v ...any)  { l.next.Info(l.prefix+format, v...) }
func (l *prefixLogger) Warn(format string, v ...any)  { l.next.Warn(l.prefix+format, v...) }
func (l *prefixLogger) Error(format string, v ...any) { l.next.Error(l.prefix+format, v...) }

// Package-level logger (default is a golog-backed logger at info level on stderr)
var defaultLogger Logger = newStderrLogger(LogLevelInfo)

func newStderrLogger(level LogLevel) *GologLogger {
	g := golog.New()
	g.SetOutput(os.Stderr)
	g.SetPrefix("[agentrun] ")
	l := NewGologLogger(g)
	l.SetLevel(level)
	return l
}

// SetDefaultLogger sets the package-level logger
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	defaultLogger = logger
}

// GetDefaultLogger returns the current package-level logger
func GetDefaultLogger() Logger {
	return defaultLogger
}

// SetLogLevel replaces the package-level logger with a stderr logger at level.
func SetLogLevel(level LogLevel) {
	defaultLogger = newStderrLogger(level)
}

// Debug logs a debug message using the package-level logger
func Debug(format string, v ...any) {
	defaultLogger.Debug(format, v...)
}

// Info logs an informational message using the package-level logger
func Info(format string, v ...any) {
	defaultLogger.Info(format, v...)
}

// Warn logs a warning message using the package-level logger
func Warn(format string, v ...any) {
	defaultLogger.Warn(format, v...)
}

// Error logs an error message using the package-level logger
func Error(format string, v ...any) {
	defaultLogger.Error(format, v...)
}
