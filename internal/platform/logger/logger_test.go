package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/phrazzld/chorepoints/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"fatal":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_WritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")

	l.Info("dropped")
	assert.Zero(t, buf.Len(), "info must be filtered at warn level")

	l.Warn("kept", slog.String("task_id", "abc"))
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "abc", record["task_id"])
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	l, err := Setup(config.ServerConfig{LogLevel: "debug"})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Same(t, l, slog.Default())
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	custom := New(&buf, "info")
	fallback := New(&bytes.Buffer{}, "info")

	t.Run("round trip", func(t *testing.T) {
		ctx := WithLogger(context.Background(), custom)
		assert.Same(t, custom, FromContext(ctx))
		assert.Same(t, custom, FromContextOrDefault(ctx, fallback))
	})

	t.Run("missing logger uses default", func(t *testing.T) {
		assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))
		assert.Same(t, slog.Default(), FromContext(context.Background()))
		assert.Same(t, slog.Default(), FromContextOrDefault(context.Background(), nil))
	})

	t.Run("nil logger panics", func(t *testing.T) {
		assert.Panics(t, func() { WithLogger(context.Background(), nil) })
	})
}
