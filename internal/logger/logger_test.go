package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-chat/internal/config"
)

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.GinMode = "release"
	cfg.LogLevel = "warn"

	l := New(&buf, cfg)
	l.Info("dropped")
	l.Warn("kept", "session_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc", entry["session_id"])
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.GinMode = "release"
	cfg.LogFormat = "text"

	New(&buf, cfg).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestHelpersAreNilSafe(t *testing.T) {
	prev := Logger
	Logger = nil
	defer func() { Logger = prev }()

	assert.NotPanics(t, func() {
		Info("x")
		Warn("x")
		Error("x")
		Debug("x")
	})
}
