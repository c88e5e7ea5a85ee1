package logging

import (
	"bytes"
	"context"
	"customer-onboarding/internal/config"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewHandler(t *testing.T) {
	t.Run("JSON encoding by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(newHandler(&buf, config.LoggerConfig{Level: "info"}))
		logger.Info("role activated", slog.Int64("customerID", 42))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "role activated", entry["msg"])
		assert.Equal(t, float64(42), entry["customerID"])
	})

	t.Run("Text encoding", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(newHandler(&buf, config.LoggerConfig{Level: "info", Encoding: "text"}))
		logger.Info("role activated")
		assert.Contains(t, buf.String(), `msg="role activated"`)
	})

	t.Run("Level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		h := newHandler(&buf, config.LoggerConfig{Level: "warn"})
		assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
		assert.True(t, h.Enabled(context.Background(), slog.LevelError))
	})
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(config.LoggerConfig{Level: "debug"})
	assert.NotNil(t, logger)
	assert.Equal(t, logger, slog.Default())
}
