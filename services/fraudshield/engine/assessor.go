// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
)

// ScoringPolicy computes anomaly scores for a commit batch.
//
// Implementations must be deterministic for identical input, return
// per-commit scores in [0,1], and emit only flags from FlagVocabulary.
// A policy may be backed by an external model; the assessor treats any
// returned error as a policy outage and degrades to a neutral
// assessment rather than failing the pipeline.
type ScoringPolicy interface {
	// Name identifies the policy in logs and results.
	Name() string

	// Score assesses the batch. The returned map holds one entry per
	// commit ID; flags are the union across commits.
	Score(ctx context.Context, commits []CommitRecord) (map[string]float64, []AnomalyFlag, error)
}

// Assessor scores commit batches for anomalies using a pluggable
// ScoringPolicy.
//
// # Thread Safety
//
// Assessor is stateless after construction and safe for concurrent use.
type Assessor struct {
	policy ScoringPolicy
	logger *slog.Logger
}

// NewAssessor creates an Assessor with the given policy.
// A nil policy selects the built-in heuristic policy.
func NewAssessor(policy ScoringPolicy, logger *slog.Logger) *Assessor {
	if policy == nil {
		policy = HeuristicPolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assessor{policy: policy, logger: logger}
}

// Assess scores a commit batch.
//
// # Inputs
//
//   - ctx: Context for cancellation of externally backed policies.
//   - commits: The batch. May be empty.
//
// # Outputs
//
//   - Assessment: Never an error. An empty batch yields a zero score
//     with no flags; a policy failure yields a neutral assessment with
//     Degraded set, so an anomaly engine outage degrades risk coverage
//     instead of availability.
func (a *Assessor) Assess(ctx context.Context, commits []CommitRecord) Assessment {
	if len(commits) == 0 {
		return NeutralAssessment(false)
	}

	scores, flags, err := a.policy.Score(ctx, commits)
	if err != nil {
		a.logger.Warn("scoring policy failed, using neutral assessment",
			"policy", a.policy.Name(), "error", err)
		return NeutralAssessment(true)
	}

	batch := 0.0
	flagged := 0
	for _, s := range scores {
		s = clamp01(s)
		if s > batch {
			batch = s
		}
		if s >= correlationFloor {
			flagged++
		}
	}

	// Correlated anomalies across commits raise the batch score above
	// the per-commit maximum, saturating so it stays in [0,1].
	if flagged > 1 {
		batch = 1 - (1-batch)*math.Pow(1-correlationBump, float64(flagged-1))
	}

	return Assessment{
		Score:        clamp01(batch),
		Flags:        canonicalFlags(flags),
		CommitScores: scores,
	}
}

const (
	// correlationFloor is the per-commit score at which a commit
	// counts toward batch-level correlation.
	correlationFloor = 0.5

	// correlationBump is the saturating increment applied per
	// additional correlated commit.
	correlationBump = 0.05
)

// canonicalFlags dedupes and orders flags by the vocabulary, dropping
// anything outside it.
func canonicalFlags(flags []AnomalyFlag) []AnomalyFlag {
	seen := make(map[AnomalyFlag]bool, len(flags))
	for _, f := range flags {
		seen[f] = true
	}
	out := make([]AnomalyFlag, 0, len(seen))
	for _, f := range FlagVocabulary {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// =============================================================================
// Heuristic Policy
// =============================================================================

// sensitiveNamePattern matches file names suggestive of credentials or
// key material.
var sensitiveNamePattern = regexp.MustCompile(
	`(?i)(credential|secret|password|token|\.pem$|\.key$|^\.env|id_rsa|keystore|\.p12$)`)

// Heuristic feature weights. The per-commit score is a saturating
// combination of the triggered features.
const (
	weightSensitiveFile = 0.60
	weightHighEntropy   = 0.35
	weightLargeCommit   = 0.25
	weightOffHours      = 0.10

	entropyThreshold = 4.3  // bits per character
	entropyMinLength = 24   // shorter messages are too noisy to judge
	largeCommitLines = 5000 // added+deleted
	offHoursStartUTC = 23
	offHoursEndUTC   = 5
)

// HeuristicPolicy is the default scoring policy. It is fully local and
// deterministic, scoring each commit on four observable features:
// sensitive-looking file names, high message entropy, unusually large
// change size, and off-hours timestamps.
type HeuristicPolicy struct{}

// Name implements ScoringPolicy.
func (HeuristicPolicy) Name() string { return "heuristic/v1" }

// Score implements ScoringPolicy. It never returns an error.
func (HeuristicPolicy) Score(_ context.Context, commits []CommitRecord) (map[string]float64, []AnomalyFlag, error) {
	scores := make(map[string]float64, len(commits))
	flags := make(map[AnomalyFlag]bool)

	for _, c := range commits {
		score := 0.0

		for _, f := range c.FilesChanged {
			if sensitiveNamePattern.MatchString(f) {
				score = saturate(score, weightSensitiveFile)
				flags[FlagSuspiciousFileChange] = true
				break
			}
		}

		if len(c.Message) >= entropyMinLength && shannonEntropy(c.Message) > entropyThreshold {
			score = saturate(score, weightHighEntropy)
			flags[FlagHighEntropyData] = true
		}

		if c.LinesAdded+c.LinesDeleted > largeCommitLines {
			score = saturate(score, weightLargeCommit)
			flags[FlagUnusualCommitSize] = true
		}

		if !c.Timestamp.IsZero() {
			hour := c.Timestamp.UTC().Hour()
			if hour >= offHoursStartUTC || hour < offHoursEndUTC {
				score = saturate(score, weightOffHours)
				flags[FlagOffHoursActivity] = true
			}
		}

		scores[c.ID] = score
	}

	if burst(commits) {
		flags[FlagBurstActivity] = true
	}

	out := make([]AnomalyFlag, 0, len(flags))
	for f := range flags {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return scores, out, nil
}

// saturate combines feature weights so the per-commit score never
// exceeds 1 while any single strong feature dominates.
func saturate(score, weight float64) float64 {
	return 1 - (1-score)*(1-weight)
}

// shannonEntropy returns the entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}
	entropy := 0.0
	for _, n := range freq {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// burst reports whether the batch looks like a rapid-fire push: three
// or more commits inside a five-minute window.
func burst(commits []CommitRecord) bool {
	if len(commits) < 3 {
		return false
	}
	times := make([]int64, 0, len(commits))
	for _, c := range commits {
		if !c.Timestamp.IsZero() {
			times = append(times, c.Timestamp.Unix())
		}
	}
	if len(times) < 3 {
		return false
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	for i := 0; i+2 < len(times); i++ {
		if times[i+2]-times[i] <= 300 {
			return true
		}
	}
	return false
}

// DescribePolicy returns a short human-readable summary of a policy's
// feature set, used by the service's readiness endpoint.
func DescribePolicy(p ScoringPolicy) string {
	if _, ok := p.(HeuristicPolicy); ok {
		return strings.Join([]string{
			"sensitive file names",
			"message entropy",
			"change size",
			"off-hours activity",
			"burst timing",
		}, ", ")
	}
	return p.Name()
}
