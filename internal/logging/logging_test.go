package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "shown", entry["message"])
	require.Equal(t, "test", entry["component"])
	require.Contains(t, entry, "time")
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "console", NoColor: true}, &buf)

	logger.Info().Msg("hello")
	require.Contains(t, buf.String(), "INF")
	require.Contains(t, buf.String(), "hello")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "chatty"}, &buf)

	logger.Debug().Msg("debug")
	require.Zero(t, buf.Len())
	logger.Info().Msg("info")
	require.NotZero(t, buf.Len())
}
