// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

// Aggregator combines the anomaly assessment and rule violations into
// one normalized risk score.
//
// The combination is saturating: score = 1 - (1-a)*(1-v), where a is
// the anomaly score and v the combined violation weight. This keeps
// the result in [0,1] no matter how many signals fire, lets any single
// strong signal dominate, and is strictly monotonic: raising the
// anomaly score or adding a violation never lowers the result.
//
// # Thread Safety
//
// Aggregator is stateless and safe for concurrent use. Score is pure;
// identical inputs yield bit-identical output.
type Aggregator struct{}

// NewAggregator creates an Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Score computes the risk score for one analysis run.
//
// # Inputs
//
//   - assessment: Anomaly assessor output. A degraded assessment
//     contributes zero, leaving rule violations to carry the score.
//   - violations: The violation set from the rule checker.
//
// # Outputs
//
//   - float64: Risk score in [0,1].
func (ag *Aggregator) Score(assessment Assessment, violations []Violation, _ RepositoryContext) float64 {
	a := clamp01(assessment.Score)

	// Violations combine saturating as well, so each additional
	// violation moves v toward 1 without ever reaching past it.
	v := 0.0
	for _, viol := range violations {
		v = 1 - (1-v)*(1-clamp01(viol.Code.Weight()))
	}

	return clamp01(1 - (1-a)*(1-v))
}
