// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRecommendHighBandOrdering verifies score 0.85 with a suspicious
// commit pattern yields the urgent guidance followed by the targeted
// item, in order and without duplicates.
func TestRecommendHighBandOrdering(t *testing.T) {
	r := NewRecommender(DefaultRecommenderConfig())
	got := r.Recommend(0.85, []Violation{{Code: CodeSuspiciousCommitPattern}})
	assert.Equal(t, []string{
		"Immediate code review required",
		"Consider rolling back recent commits",
		"Investigate unusual commit frequency",
	}, got)
}

// TestRecommendElevatedBand verifies the 0.6 band guidance.
func TestRecommendElevatedBand(t *testing.T) {
	r := NewRecommender(DefaultRecommenderConfig())
	got := r.Recommend(0.65, nil)
	assert.Equal(t, []string{
		"Enhanced monitoring recommended",
		"Review contributor access permissions",
	}, got)
}

// TestRecommendBandsExclusive verifies the high band replaces, not
// extends, the elevated band.
func TestRecommendBandsExclusive(t *testing.T) {
	r := NewRecommender(DefaultRecommenderConfig())
	got := r.Recommend(0.95, nil)
	assert.Equal(t, highBandGuidance, got)
}

// TestRecommendBoundaryExclusive verifies band edges use strict
// comparison.
func TestRecommendBoundaryExclusive(t *testing.T) {
	r := NewRecommender(DefaultRecommenderConfig())
	assert.Equal(t, elevatedBandGuidance, r.Recommend(0.8, nil))
	assert.Empty(t, r.Recommend(0.6, nil))
}

// TestRecommendViolationGuidanceBelowBands verifies targeted guidance
// appears regardless of score band.
func TestRecommendViolationGuidanceBelowBands(t *testing.T) {
	r := NewRecommender(DefaultRecommenderConfig())
	got := r.Recommend(0.1, []Violation{
		{Code: CodeLargeFileChanges},
		{Code: CodeSensitiveFileChanges},
	})
	assert.Equal(t, []string{
		"Review large code changes for malicious content",
		"Rotate any credentials exposed in changed files",
	}, got)
}

// TestRecommendCustomBands verifies configurable thresholds.
func TestRecommendCustomBands(t *testing.T) {
	r := NewRecommender(RecommenderConfig{HighBand: 0.5, ElevatedBand: 0.3})
	assert.Equal(t, highBandGuidance, r.Recommend(0.55, nil))
	assert.Equal(t, elevatedBandGuidance, r.Recommend(0.35, nil))
}

// TestDedupePreservesFirstOccurrence covers the ordering helper.
func TestDedupePreservesFirstOccurrence(t *testing.T) {
	got := dedupe([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
