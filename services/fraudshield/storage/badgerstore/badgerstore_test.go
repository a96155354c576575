// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badgerstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudshieldai/fraudshield/services/fraudshield/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func analysisAt(id string, score float64, at time.Time) *engine.AnalysisResult {
	return &engine.AnalysisResult{
		ID:         id,
		Repository: engine.RepositoryContext{Name: "payments"},
		RiskScore:  score,
		CreatedAt:  at,
	}
}

func alertAt(id string, at time.Time) *engine.Alert {
	return &engine.Alert{
		ID:        id,
		Type:      engine.AlertTypeHighRisk,
		Severity:  engine.SeverityHigh,
		Message:   "test alert",
		CreatedAt: at,
	}
}

// TestOpenRequiresPath verifies persistent mode requires a path.
func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

// TestOpenPersistent verifies data survives a close and reopen.
func TestOpenPersistent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.SaveAlert(context.Background(), alertAt("a1", time.Now())))
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	alerts, err := s2.UnresolvedAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a1", alerts[0].ID)
}

// TestUnresolvedAlertsOrderAndLimit verifies most-recent-first order
// and the bound.
func TestUnresolvedAlertsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveAlert(ctx, alertAt(fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	alerts, err := s.UnresolvedAlerts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "a4", alerts[0].ID)
	assert.Equal(t, "a3", alerts[1].ID)
	assert.Equal(t, "a2", alerts[2].ID)
}

// TestResolveAlert verifies resolution flips the flag and removes the
// alert from the unresolved listing.
func TestResolveAlert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAlert(ctx, alertAt("a1", time.Now())))
	require.NoError(t, s.ResolveAlert(ctx, "a1"))

	alerts, err := s.UnresolvedAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// Resolving again is a no-op.
	require.NoError(t, s.ResolveAlert(ctx, "a1"))
}

// TestResolveUnknownAlert verifies the sentinel error.
func TestResolveUnknownAlert(t *testing.T) {
	s := openTestStore(t)
	err := s.ResolveAlert(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

// TestStats verifies the aggregate statistics, including that commit
// analyses do not count toward repository analysis totals.
func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveAnalysis(ctx, analysisAt("r1", 0.2, base)))
	require.NoError(t, s.SaveAnalysis(ctx, analysisAt("r2", 0.8, base.Add(time.Minute))))
	require.NoError(t, s.SaveAnalysis(ctx, analysisAt("r3", 0.9, base.Add(2*time.Minute))))
	require.NoError(t, s.SaveCommitAnalysis(ctx, analysisAt("c1", 1.0, base)))
	require.NoError(t, s.SaveAlert(ctx, alertAt("a1", base)))
	require.NoError(t, s.SaveAlert(ctx, alertAt("a2", base.Add(time.Minute))))
	require.NoError(t, s.ResolveAlert(ctx, "a1"))

	stats, err := s.Stats(ctx, 0.7)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAnalyses)
	assert.Equal(t, 2, stats.HighRiskAnalyses)
	assert.Equal(t, 1, stats.ActiveAlerts)
	assert.InDelta(t, (0.2+0.8+0.9)/3, stats.AverageRiskScore, 1e-9)
}

// TestStatsEmptyStore verifies zero-value stats on a fresh store.
func TestStatsEmptyStore(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.Stats(context.Background(), 0.7)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAnalyses)
	assert.Zero(t, stats.AverageRiskScore)
}
