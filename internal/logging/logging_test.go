// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/navstream/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"INFO":  zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "navstream.log")
	logger, err := New(config.LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("turn finished", zap.String("conversation_id", "c1"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "turn finished", entry["msg"])
	assert.Equal(t, "c1", entry["conversation_id"])
	assert.Equal(t, "navstream", entry["logger"])
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navstream.log")
	logger, err := New(config.LogConfig{Level: "error", Format: "console", File: path})
	require.NoError(t, err)

	logger.Info("before")
	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
	logger.Named("session").Debug("after")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "before")
	assert.Contains(t, string(data), "after")

	assert.Error(t, logger.SetLevel("verbose"))
}

func TestNew_BadFormat(t *testing.T) {
	_, err := New(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
