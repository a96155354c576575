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

var allViolations = []Violation{
	{Code: CodeSuspiciousCommitPattern},
	{Code: CodeLargeFileChanges},
	{Code: CodeSensitiveFileChanges},
	{Code: CodeUnverifiedAuthor},
}

// TestScoreBounded verifies the risk score stays in [0,1] across the
// input space, including the degenerate empty case.
func TestScoreBounded(t *testing.T) {
	ag := NewAggregator()
	repo := RepositoryContext{}

	assert.Zero(t, ag.Score(NeutralAssessment(false), nil, repo))

	for _, a := range []float64{0, 0.1, 0.5, 0.9, 1.0} {
		for n := 0; n <= len(allViolations); n++ {
			got := ag.Score(Assessment{Score: a}, allViolations[:n], repo)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

// TestScoreMonotonicInAssessment verifies raising the anomaly score
// never lowers the risk score.
func TestScoreMonotonicInAssessment(t *testing.T) {
	ag := NewAggregator()
	repo := RepositoryContext{}
	for n := 0; n <= len(allViolations); n++ {
		prev := -1.0
		for _, a := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0} {
			got := ag.Score(Assessment{Score: a}, allViolations[:n], repo)
			assert.GreaterOrEqual(t, got, prev, "assessment=%v violations=%d", a, n)
			prev = got
		}
	}
}

// TestScoreMonotonicInViolations verifies adding a violation never
// lowers the risk score.
func TestScoreMonotonicInViolations(t *testing.T) {
	ag := NewAggregator()
	repo := RepositoryContext{}
	for _, a := range []float64{0, 0.3, 0.7, 1.0} {
		prev := -1.0
		for n := 0; n <= len(allViolations); n++ {
			got := ag.Score(Assessment{Score: a}, allViolations[:n], repo)
			assert.GreaterOrEqual(t, got, prev, "assessment=%v violations=%d", a, n)
			prev = got
		}
	}
}

// TestScoreIdempotent verifies repeated identical input yields
// bit-identical output.
func TestScoreIdempotent(t *testing.T) {
	ag := NewAggregator()
	repo := RepositoryContext{Name: "payments"}
	assessment := Assessment{Score: 0.375}
	first := ag.Score(assessment, allViolations[:2], repo)
	second := ag.Score(assessment, allViolations[:2], repo)
	assert.Equal(t, first, second)
}

// TestScoreStrongSignalDominates verifies a maximal anomaly score
// saturates the result regardless of violations.
func TestScoreStrongSignalDominates(t *testing.T) {
	ag := NewAggregator()
	got := ag.Score(Assessment{Score: 1.0}, nil, RepositoryContext{})
	assert.Equal(t, 1.0, got)
}

// TestScoreDegradedAssessmentUsesRulesAlone verifies a neutral
// assessment leaves rule violations carrying the whole score.
func TestScoreDegradedAssessmentUsesRulesAlone(t *testing.T) {
	ag := NewAggregator()
	got := ag.Score(NeutralAssessment(true), allViolations[:2], RepositoryContext{})
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 1.0)
}
