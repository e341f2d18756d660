package logging

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "warn", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "loud", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: LevelWarn, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message", "path", "docs")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "path=docs")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: LevelDebug, Output: &buf}).WithKey("abc").WithOperation("fetch")

	LogCacheMiss(context.Background(), logger, "abc", "https://example.com/r.git", "not cloned")
	LogCleanup(context.Background(), logger, "prune", 2, 1024, 5*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "key=abc")
	assert.Contains(t, out, "operation=fetch")
	assert.Contains(t, out, "result=miss")
	assert.Contains(t, out, "entries_removed=2")
}

func TestNopLogger(t *testing.T) {
	ctx := context.Background()

	var nilLogger *Logger
	require.NotPanics(t, func() {
		nilLogger.Info(ctx, "ignored")
		nilLogger.With("k", "v").Error(ctx, "ignored")
		LogEviction(ctx, nilLogger, "key", 10, "age")
	})

	nop := NewNopLogger()
	require.NotPanics(t, func() {
		nop.With("k", "v").Warn(ctx, "ignored")
		LogCacheHit(ctx, nop, "key", "url")
	})
}
