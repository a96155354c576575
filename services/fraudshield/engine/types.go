// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the fraud analysis pipeline.
//
// The pipeline has five stages, wired together by Engine:
//
//	commits ──► Assessor ──┐
//	                       ├──► Aggregator ──► Recommender ──► AnalysisResult
//	commits ──► RuleChecker┘
//
// The Assessor scores commit batches for content and statistical
// anomalies. The RuleChecker evaluates a fixed catalogue of
// deterministic rules. The Aggregator combines both signals into a
// single risk score in [0,1], and the Recommender maps the score and
// violations to actionable guidance. Engine sequences the stages,
// persists the result, and fans out alerts when the score crosses
// the configured threshold.
//
// All components are stateless after construction and safe for
// concurrent use. Collaborators (persistence, notification channels)
// are injected via constructors so tests can substitute fakes.
package engine

import "time"

// EngineVersion is the version of the analysis pipeline.
// Increment when making changes that affect risk calculations.
const EngineVersion = "1.0"

// CommitRecord is a single normalized commit as produced by the
// ingestion layer. Immutable once created.
type CommitRecord struct {
	ID           string    `json:"id" validate:"required"`
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	FilesChanged []string  `json:"files_changed"`
	LinesAdded   int       `json:"lines_added" validate:"gte=0"`
	LinesDeleted int       `json:"lines_deleted" validate:"gte=0"`
}

// RepositoryContext identifies the repository an analysis run is for.
// Immutable per run.
type RepositoryContext struct {
	Name      string    `json:"name" validate:"required"`
	ID        string    `json:"id"`
	URL       string    `json:"url" validate:"omitempty,url"`
	Timestamp time.Time `json:"timestamp"`
}

// AnomalyFlag is a named tag from the fixed anomaly vocabulary.
type AnomalyFlag string

// The anomaly flag vocabulary. Scoring policies must not emit flags
// outside this set.
const (
	FlagSuspiciousFileChange AnomalyFlag = "suspicious_file_change"
	FlagHighEntropyData      AnomalyFlag = "high_entropy_data"
	FlagUnusualCommitSize    AnomalyFlag = "unusual_commit_size"
	FlagOffHoursActivity     AnomalyFlag = "off_hours_activity"
	FlagBurstActivity        AnomalyFlag = "burst_activity"
)

// FlagVocabulary lists every flag a scoring policy may emit, in
// stable order.
var FlagVocabulary = []AnomalyFlag{
	FlagSuspiciousFileChange,
	FlagHighEntropyData,
	FlagUnusualCommitSize,
	FlagOffHoursActivity,
	FlagBurstActivity,
}

// Assessment is the anomaly assessor's output for a commit batch.
//
// Score is the batch aggregate and is always at least the maximum
// per-commit score, so a single severe anomaly is never diluted by
// averaging across a large push.
type Assessment struct {
	// Score is the batch anomaly score in [0,1].
	Score float64 `json:"score"`

	// Flags is the union of per-commit flags, in vocabulary order.
	Flags []AnomalyFlag `json:"flags"`

	// CommitScores maps commit ID to its individual anomaly score.
	CommitScores map[string]float64 `json:"commit_scores,omitempty"`

	// Degraded is true when the scoring policy failed and the
	// assessor fell back to a neutral assessment.
	Degraded bool `json:"degraded,omitempty"`
}

// NeutralAssessment returns the zero-signal assessment used for empty
// batches and for degraded mode.
func NeutralAssessment(degraded bool) Assessment {
	return Assessment{Score: 0, Flags: []AnomalyFlag{}, Degraded: degraded}
}

// ViolationCode names a rule in the closed catalogue.
type ViolationCode string

// The rule catalogue. Codes are listed here in catalogue order; the
// checker reports violations in this order regardless of evaluation
// order.
const (
	CodeSuspiciousCommitPattern ViolationCode = "suspicious_commit_pattern"
	CodeLargeFileChanges        ViolationCode = "large_file_changes"
	CodeSensitiveFileChanges    ViolationCode = "sensitive_file_changes"
	CodeUnverifiedAuthor        ViolationCode = "unverified_author"
)

// Violation is a single rule violation describing the batch, not an
// individual commit. Each code appears at most once per analysis.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

// violationWeights are the severity weights consumed by the
// aggregator. Heavier codes move the risk score further.
var violationWeights = map[ViolationCode]float64{
	CodeSuspiciousCommitPattern: 0.45,
	CodeLargeFileChanges:        0.35,
	CodeSensitiveFileChanges:    0.55,
	CodeUnverifiedAuthor:        0.20,
}

// Weight returns the severity weight for a violation code.
// Unknown codes weigh zero so the aggregator stays bounded.
func (c ViolationCode) Weight() float64 {
	return violationWeights[c]
}

// AnalysisResult is the immutable output of one pipeline run.
// It is fully populated before it is persisted; a run either produces
// a complete result or fails.
type AnalysisResult struct {
	ID              string            `json:"id"`
	Repository      RepositoryContext `json:"repository"`
	CommitID        string            `json:"commit_id,omitempty"`
	RiskScore       float64           `json:"risk_score"`
	Assessment      Assessment        `json:"ai_analysis"`
	Violations      []Violation       `json:"rule_violations"`
	Recommendations []string          `json:"recommendations"`
	EngineVersion   string            `json:"engine_version"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Alert severities.
const (
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// AlertTypeHighRisk is the alert type for threshold-crossing analyses.
const AlertTypeHighRisk = "high_risk_activity"

// Alert records a threshold-crossing analysis. Created once, mutated
// later only by explicit resolution.
type Alert struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Repository string    `json:"repository,omitempty"`
	CommitID   string    `json:"commit_id,omitempty"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`
}
