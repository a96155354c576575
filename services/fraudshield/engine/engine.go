// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence contract the engine requires. The badger
// store satisfies it; tests substitute fakes.
type Store interface {
	// SaveAnalysis durably stores a repository analysis result.
	SaveAnalysis(ctx context.Context, result *AnalysisResult) error

	// SaveCommitAnalysis durably stores a single-commit analysis
	// result.
	SaveCommitAnalysis(ctx context.Context, result *AnalysisResult) error

	// SaveAlert durably stores an alert.
	SaveAlert(ctx context.Context, alert *Alert) error
}

// Notifier is a notification channel from the engine's point of view:
// a fire-and-forget send whose failure is logged, never propagated.
type Notifier interface {
	Name() string
	Send(ctx context.Context, subject, body string, recipients []string) error
}

// MetricsRecorder receives pipeline observations. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	ObserveAnalysis(riskScore float64, violations int, alerted bool)
	ObserveAlert(severity string)
	ObserveNotifyFailure(channel string)
}

// Config holds the engine's tunable thresholds.
type Config struct {
	// AlertThreshold is the risk score an analysis must strictly
	// exceed to trigger an alert.
	AlertThreshold float64

	// AlertRecipients receive channel notifications for alerts.
	AlertRecipients []string

	// Rules configures the rule checker catalogue.
	Rules RuleCheckerConfig

	// Bands configures recommendation score bands.
	Bands RecommenderConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AlertThreshold: 0.7,
		Rules:          DefaultRuleCheckerConfig(),
		Bands:          DefaultRecommenderConfig(),
	}
}

// Engine drives the fraud analysis pipeline: assess, check rules,
// aggregate, recommend, persist, and conditionally alert.
//
// # Thread Safety
//
// Engine holds no cross-call state; every invocation is self-contained
// given its inputs. It is safe for any number of concurrent runs. The
// only shared mutable resource is the injected Store.
type Engine struct {
	assessor *Assessor
	checker  *RuleChecker
	agg      *Aggregator
	rec      *Recommender
	store    Store
	channels []Notifier
	metrics  MetricsRecorder
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Engine with the built-in heuristic scoring policy.
//
// # Inputs
//
//   - cfg: Thresholds. A zero AlertThreshold selects 0.7.
//   - store: Persistence collaborator. Must not be nil.
//
// # Outputs
//
//   - *Engine: Configure channels, policy, and metrics via the With*
//     methods before first use.
func New(cfg Config, store Store) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = DefaultConfig().AlertThreshold
	}
	logger := slog.Default()
	return &Engine{
		assessor: NewAssessor(nil, logger),
		checker:  NewRuleChecker(cfg.Rules),
		agg:      NewAggregator(),
		rec:      NewRecommender(cfg.Bands),
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// WithChannels sets the notification channels for alert fan-out.
func (e *Engine) WithChannels(channels ...Notifier) *Engine {
	e.channels = channels
	return e
}

// WithPolicy replaces the anomaly scoring policy.
func (e *Engine) WithPolicy(policy ScoringPolicy) *Engine {
	e.assessor = NewAssessor(policy, e.logger)
	return e
}

// WithMetrics sets the metrics recorder.
func (e *Engine) WithMetrics(m MetricsRecorder) *Engine {
	e.metrics = m
	return e
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
		e.assessor.logger = logger
	}
	return e
}

// AnalyzeRepository runs the full pipeline over a commit batch.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - repo: Repository context for the triggering event.
//   - commits: The batch. An empty batch yields a stored zero-risk
//     result, not an error.
//
// # Outputs
//
//   - *AnalysisResult: The complete, persisted result.
//   - error: Non-nil only when the result could not be stored.
func (e *Engine) AnalyzeRepository(ctx context.Context, repo RepositoryContext, commits []CommitRecord) (*AnalysisResult, error) {
	return e.run(ctx, repo, commits, "")
}

// AnalyzeCommit runs the pipeline over a one-element batch. The
// result carries the commit ID and is stored in the commit keyspace.
func (e *Engine) AnalyzeCommit(ctx context.Context, commit CommitRecord) (*AnalysisResult, error) {
	return e.run(ctx, RepositoryContext{}, []CommitRecord{commit}, commit.ID)
}

func (e *Engine) run(ctx context.Context, repo RepositoryContext, commits []CommitRecord, commitID string) (*AnalysisResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := e.logger.With("repository", repo.Name, "commits", len(commits))
	logger.Info("starting fraud analysis")

	// Assessor and rule checker share no mutable state, so they run
	// concurrently. Neither returns an error: the assessor degrades
	// internally and the checker cannot fail on well-formed input.
	var (
		assessment Assessment
		violations []Violation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		assessment = e.assessor.Assess(gctx, commits)
		return nil
	})
	g.Go(func() error {
		violations = e.checker.Check(commits, repo)
		return nil
	})
	_ = g.Wait()

	score := e.agg.Score(assessment, violations, repo)
	recommendations := e.rec.Recommend(score, violations)

	result := &AnalysisResult{
		ID:              uuid.NewString(),
		Repository:      repo,
		CommitID:        commitID,
		RiskScore:       score,
		Assessment:      assessment,
		Violations:      violations,
		Recommendations: recommendations,
		EngineVersion:   EngineVersion,
		CreatedAt:       e.now().UTC(),
	}

	var err error
	if commitID != "" {
		err = e.store.SaveCommitAnalysis(ctx, result)
	} else {
		err = e.store.SaveAnalysis(ctx, result)
	}
	if err != nil {
		logger.Error("failed to store analysis result", "error", err)
		return nil, &PipelineError{Stage: StagePersist, Err: err}
	}

	// The result is durably stored before alerting; a failure past
	// this point never fails the run.
	alerted := false
	if score > e.cfg.AlertThreshold {
		alerted = true
		e.alert(ctx, result)
	}

	if e.metrics != nil {
		e.metrics.ObserveAnalysis(score, len(violations), alerted)
	}

	logger.Info("fraud analysis completed",
		"risk_score", score, "violations", len(violations), "alerted", alerted)
	return result, nil
}

// alert persists an Alert record and dispatches it to every channel.
// Channel failures are isolated per channel and only logged.
func (e *Engine) alert(ctx context.Context, result *AnalysisResult) {
	severity := SeverityHigh
	if result.RiskScore > 0.9 {
		severity = SeverityCritical
	}

	alert := &Alert{
		ID:         uuid.NewString(),
		Type:       AlertTypeHighRisk,
		Severity:   severity,
		Message:    alertMessage(result),
		Repository: result.Repository.Name,
		CommitID:   result.CommitID,
		CreatedAt:  e.now().UTC(),
	}

	if e.metrics != nil {
		e.metrics.ObserveAlert(severity)
	}

	if err := e.store.SaveAlert(ctx, alert); err != nil {
		// The analysis result is already stored; still try the
		// channels so a persistence hiccup does not mute the alarm.
		e.logger.Error("failed to store alert", "alert_id", alert.ID, "error", err)
	}

	subject := fmt.Sprintf("High Risk Alert: %s", displayName(result))
	for _, ch := range e.channels {
		if err := ch.Send(ctx, subject, alert.Message, e.cfg.AlertRecipients); err != nil {
			e.logger.Error("alert dispatch failed",
				"channel", ch.Name(), "alert_id", alert.ID, "error", err)
			if e.metrics != nil {
				e.metrics.ObserveNotifyFailure(ch.Name())
			}
		}
	}
}

func alertMessage(result *AnalysisResult) string {
	return fmt.Sprintf("High-risk activity detected in %s\nRisk score: %.2f\nViolations: %d",
		displayName(result), result.RiskScore, len(result.Violations))
}

func displayName(result *AnalysisResult) string {
	if result.Repository.Name != "" {
		return result.Repository.Name
	}
	if result.CommitID != "" {
		return "commit " + result.CommitID
	}
	return "unknown"
}
