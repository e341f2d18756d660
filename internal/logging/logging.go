// Package logging provides the structured logger shared by the gitwire packages.
// Library code receives a *Logger through options and defaults to NewNopLogger, so
// nothing is written unless the caller asks for it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
)

// Level is a minimum log level.
type Level int

// Supported levels, lowest first.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures NewLogger.
type Config struct {
	// Level sets the minimum level written.
	Level Level
	// Output receives log lines. Defaults to os.Stderr.
	Output io.Writer
	// AddSource includes file and line in each record.
	AddSource bool
}

// DefaultConfig logs info and above to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Logger writes structured records through slog. The zero value and a nil
// *Logger discard everything.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a logger writing text records.
func NewLogger(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     config.Level.slog(),
		AddSource: config.AddSource,
	})

	return &Logger{logger: slog.New(handler)}
}

// NewNopLogger creates a logger that discards all records.
func NewNopLogger() *Logger {
	return &Logger{}
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.DebugContext(ctx, msg, args...)
	}
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.InfoContext(ctx, msg, args...)
	}
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.WarnContext(ctx, msg, args...)
	}
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.ErrorContext(ctx, msg, args...)
	}
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.logger == nil {
		return l
	}
	return &Logger{logger: l.logger.With(args...)}
}

// WithOperation returns a logger tagged with an operation name.
func (l *Logger) WithOperation(operation string) *Logger {
	return l.With("operation", operation)
}

// WithKey returns a logger tagged with a cache key.
func (l *Logger) WithKey(key string) *Logger {
	return l.With("key", key)
}

// ParseLevel parses debug, info, warn (or warning) and error.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.WithContext(
			errors.Newf(errors.CodeInvalidInput, "invalid log level: %s", level), "level", level)
	}
}

// LogCacheHit records that a cache slot was reused.
func LogCacheHit(ctx context.Context, logger *Logger, key, url string) {
	logger.Debug(ctx, "cache hit",
		"key", key,
		"url", url,
		"result", "hit")
}

// LogCacheMiss records that a cache slot has to be fetched.
func LogCacheMiss(ctx context.Context, logger *Logger, key, url, reason string) {
	logger.Debug(ctx, "cache miss",
		"key", key,
		"url", url,
		"reason", reason,
		"result", "miss")
}

// LogEviction records the removal of one cache slot.
func LogEviction(ctx context.Context, logger *Logger, key string, size int64, reason string) {
	logger.Info(ctx, "cache entry evicted",
		"key", key,
		"size", size,
		"reason", reason)
}

// LogCleanup records the outcome of a prune run.
func LogCleanup(ctx context.Context, logger *Logger, operation string, entriesRemoved int, bytesFreed int64, duration time.Duration) {
	logger.Info(ctx, "cache cleanup completed",
		"operation", operation,
		"entries_removed", entriesRemoved,
		"bytes_freed", bytesFreed,
		"duration_ms", duration.Milliseconds())
}
