package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Output: &buf})

	logger.With("component", "connpolicy").
		WithGroup("policy").
		Debug("resolved",
			"mode", "Gateway",
			"limit", 9001,
			"multi_write", true,
			"timeout", time.Second,
			slog.Group("retry", "attempts", 9),
		)

	entries := lines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "debug", e["level"])
	assert.Equal(t, "resolved", e["message"])
	assert.Equal(t, "connpolicy", e["component"])
	assert.Equal(t, "Gateway", e["policy.mode"])
	assert.Equal(t, 9001.0, e["policy.limit"])
	assert.Equal(t, true, e["policy.multi_write"])
	assert.Equal(t, 9.0, e["policy.retry.attempts"])
	assert.Contains(t, e, zerolog.TimestampFieldName)
}

func TestNewLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "error", errors.New("boom"))

	entries := lines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "boom", entries[0]["error"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: " ERROR ", want: zerolog.ErrorLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "verbose", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger_Pretty(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Config{Level: "info", Pretty: true, Output: &buf}).Info("hello", "endpoint", "https://localhost:8081/")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "endpoint=")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(out))))
}
