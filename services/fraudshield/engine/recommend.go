// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

// RecommenderConfig holds the score bands for recommendation
// generation. Bands are evaluated highest-first; the first band the
// score exceeds contributes its guidance.
type RecommenderConfig struct {
	// HighBand is the score above which urgent guidance is issued.
	HighBand float64

	// ElevatedBand is the score above which monitoring guidance is
	// issued when the high band does not apply.
	ElevatedBand float64
}

// DefaultRecommenderConfig returns the default bands.
func DefaultRecommenderConfig() RecommenderConfig {
	return RecommenderConfig{HighBand: 0.8, ElevatedBand: 0.6}
}

// Band guidance, in emission order.
var (
	highBandGuidance = []string{
		"Immediate code review required",
		"Consider rolling back recent commits",
	}
	elevatedBandGuidance = []string{
		"Enhanced monitoring recommended",
		"Review contributor access permissions",
	}
)

// violationGuidance maps violation codes to targeted guidance,
// appended after band items regardless of score.
var violationGuidance = map[ViolationCode]string{
	CodeSuspiciousCommitPattern: "Investigate unusual commit frequency",
	CodeLargeFileChanges:        "Review large code changes for malicious content",
	CodeSensitiveFileChanges:    "Rotate any credentials exposed in changed files",
	CodeUnverifiedAuthor:        "Verify commit author identity and signing",
}

// Recommender maps a risk score and violation set to an ordered list
// of actionable recommendations.
//
// Ordering is deterministic: score-band items first, then
// violation-specific items in catalogue order, with duplicates removed
// preserving first occurrence.
type Recommender struct {
	cfg RecommenderConfig
}

// NewRecommender creates a Recommender. Zero bands select defaults.
func NewRecommender(cfg RecommenderConfig) *Recommender {
	def := DefaultRecommenderConfig()
	if cfg.HighBand <= 0 {
		cfg.HighBand = def.HighBand
	}
	if cfg.ElevatedBand <= 0 {
		cfg.ElevatedBand = def.ElevatedBand
	}
	return &Recommender{cfg: cfg}
}

// Recommend generates the recommendation list for one analysis run.
// Violations are expected in catalogue order, as produced by
// RuleChecker.Check.
func (r *Recommender) Recommend(score float64, violations []Violation) []string {
	recs := make([]string, 0, 4)

	switch {
	case score > r.cfg.HighBand:
		recs = append(recs, highBandGuidance...)
	case score > r.cfg.ElevatedBand:
		recs = append(recs, elevatedBandGuidance...)
	}

	for _, v := range violations {
		if g, ok := violationGuidance[v.Code]; ok {
			recs = append(recs, g)
		}
	}

	return dedupe(recs)
}

// dedupe removes duplicates preserving first occurrence.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
