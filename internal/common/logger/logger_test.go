package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Info("Graph assembled", "nodes", 42, "weekday", "monday")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "Graph assembled", entry["message"])
	require.Equal(t, float64(42), entry["nodes"])
	require.Equal(t, "monday", entry["weekday"])
}

func TestLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Error("Failed to build graph", "error", errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "boom", entry["error"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithLevel(zerolog.InfoLevel, &buf)

	log.Debug("hidden")
	require.Zero(t, buf.Len())

	log.Info("visible")
	require.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("not-a-level"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}
