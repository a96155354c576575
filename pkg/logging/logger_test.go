// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
		{"  error  ", LevelError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "error", LevelError.String())
}

func TestDefaultNeverNil(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	require.NotNil(t, logger.Slog())

	// Must not panic.
	logger.Info("hello", "key", "value")
	assert.NoError(t, logger.Close())
}

func TestFileLoggingWritesJSON(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "fraudtest",
		Quiet:   true,
	})
	require.NoError(t, err)

	logger.Info("analysis stored", "risk_score", 0.42)
	require.NoError(t, logger.Close())

	name := fmt.Sprintf("fraudtest_%s.log", time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "analysis stored", entry["msg"])
	assert.Equal(t, "fraudtest", entry["service"])
	assert.InDelta(t, 0.42, entry["risk_score"], 1e-9)
}

func TestFileLoggingCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	logger, err := New(Config{LogDir: dir, Service: "svc", Quiet: true})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("first entry")

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileErrorStillReturnsWorkingLogger(t *testing.T) {
	// A regular file where the directory should be forces a failure.
	bad := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0600))

	logger, err := New(Config{LogDir: filepath.Join(bad, "logs"), Quiet: true})
	assert.Error(t, err)
	require.NotNil(t, logger)

	// stderr-only fallback must not panic.
	logger.Warn("degraded logging")
	assert.NoError(t, logger.Close())
}

func TestCloseIdempotent(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, err)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: LevelWarn, LogDir: dir, Service: "svc", Quiet: true})
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	name := fmt.Sprintf("svc_%s.log", time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestWithAttachesAttributes(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{LogDir: dir, Service: "svc", Quiet: true})
	require.NoError(t, err)

	child := logger.With("request_id", "abc-123")
	child.Info("handled")
	require.NoError(t, logger.Close())

	name := fmt.Sprintf("svc_%s.log", time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), "abc-123")
}
