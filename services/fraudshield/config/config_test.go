// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults verifies the service runs with no config file.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Analysis.AlertThreshold)
	assert.Equal(t, 0.8, cfg.Analysis.HighBand)
	assert.Equal(t, 0.6, cfg.Analysis.ElevatedBand)
	assert.Equal(t, 1000, cfg.Analysis.LargeChangeLines)
	assert.Equal(t, 8440, cfg.Server.Port)
}

// TestLoadFile verifies YAML fields override defaults while absent
// fields keep them.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraudshield.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9001
analysis:
  alert_threshold: 0.5
  high_band: 0.8
  elevated_band: 0.6
  large_change_lines: 1000
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Analysis.AlertThreshold)
	// Defaults retained for absent fields.
	assert.Equal(t, 10.0, cfg.Webhook.RatePerSecond)
	assert.Equal(t, "info", cfg.Logging.Level)
}

// TestLoadRejectsInvalid verifies validation failures surface.
func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"threshold above one", "analysis:\n  alert_threshold: 1.5\n"},
		{"bands inverted", "analysis:\n  high_band: 0.4\n  elevated_band: 0.6\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad port", "server:\n  port: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fraudshield.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

// TestEnvOverrides verifies secrets come from the environment.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("FRAUDSHIELD_GITHUB_SECRET", "hush")
	t.Setenv("FRAUDSHIELD_PORT", "9002")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "hush", cfg.Webhook.GitHubSecret)
	assert.Equal(t, 9002, cfg.Server.Port)
}

// TestWatcherReload verifies a file rewrite delivers a new snapshot.
func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fraudshield.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  alert_threshold: 0.7\n"), 0644))

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(path, nil, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  alert_threshold: 0.55\n"), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 0.55, cfg.Analysis.AlertThreshold)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

// TestWatcherKeepsPreviousOnBadReload verifies an invalid rewrite is
// rejected without delivering a snapshot.
func TestWatcherKeepsPreviousOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fraudshield.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  alert_threshold: 0.7\n"), 0644))

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(path, nil, func(cfg Config) { reloaded <- cfg })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  alert_threshold: 99\n"), 0644))

	select {
	case cfg := <-reloaded:
		t.Fatalf("unexpected reload with threshold %v", cfg.Analysis.AlertThreshold)
	case <-time.After(time.Second):
		// No snapshot delivered; previous configuration kept.
	}
}
