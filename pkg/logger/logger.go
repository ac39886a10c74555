// Package logger provides a process-wide structured logger.
//
// It wraps log/slog behind a small set of package functions so callers never
// have to thread a *slog.Logger through constructors. The underlying logger
// is held in an atomic.Value so it can be swapped (e.g. in tests) without a
// mutex on the hot path.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var singleton atomic.Value // holds *slog.Logger

func init() {
	singleton.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Initialize (re)configures the process-wide logger from the environment.
//
//   - LOG_LEVEL: debug|info|warn|error (default info)
//   - UNSTRUCTURED_LOGS: a false value ("false", "f", "0" or "no") switches
//     to JSON output; anything else (including unset) keeps the
//     human-readable text handler.
func Initialize() {
	level := levelFromEnv(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if unstructuredLogs() {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	singleton.Store(slog.New(handler))
}

func unstructuredLogs() bool {
	return unstructuredLogsWithEnv(osEnvReader{})
}

// envReader is narrow on purpose so tests can stub Getenv without pulling in
// the real environment.
type envReader interface {
	Getenv(string) string
}

type osEnvReader struct{}

func (osEnvReader) Getenv(key string) string { return os.Getenv(key) }

func unstructuredLogsWithEnv(env envReader) bool {
	v := strings.ToLower(strings.TrimSpace(env.Getenv("UNSTRUCTURED_LOGS")))
	if v == "" {
		return true
	}
	b, err := boolFromString(v)
	if err != nil {
		return true
	}
	return b
}

func boolFromString(v string) (bool, error) {
	switch v {
	case "1", "t", "true", "yes":
		return true, nil
	case "0", "f", "false", "no":
		return false, nil
	default:
		return false, errInvalidBool
	}
}

func levelFromEnv(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func current() *slog.Logger {
	return singleton.Load().(*slog.Logger)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { current().Debug(sprintf(format, args...)) }

// Info logs at info level.
func Info(msg string, args ...any) { current().Info(msg, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { current().Info(sprintf(format, args...)) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { current().Warn(msg, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { current().Warn(sprintf(format, args...)) }

// Error logs at error level.
func Error(msg string, args ...any) { current().Error(msg, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { current().Error(sprintf(format, args...)) }

// WithContext returns the process logger; kept as a seam for future
// context-scoped fields (request ID, server name) without changing callers.
func WithContext(_ context.Context) *slog.Logger { return current() }
