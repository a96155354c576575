// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"sort"
	"time"
)

// Rule is one entry in the deterministic rule catalogue.
//
// Rules are stateless and independently evaluable: a new rule is added
// by implementing this interface and appending it to the catalogue,
// without touching existing rule logic. A rule describes the batch as
// a whole; if its condition holds for any commit, the checker reports
// the violation once.
type Rule interface {
	// Code is the rule's catalogue code.
	Code() ViolationCode

	// Check evaluates the rule against the batch. It returns a
	// violation message when the rule fires, or "" when it does not.
	Check(commits []CommitRecord, repo RepositoryContext) string
}

// RuleCheckerConfig holds the tunable thresholds for catalogue rules.
type RuleCheckerConfig struct {
	// LargeChangeLines is the added+deleted line count beyond which a
	// single commit triggers large_file_changes.
	LargeChangeLines int

	// BurstWindow and BurstCount define the suspicious commit pattern:
	// BurstCount or more commits inside BurstWindow.
	BurstWindow time.Duration
	BurstCount  int
}

// DefaultRuleCheckerConfig returns production defaults.
func DefaultRuleCheckerConfig() RuleCheckerConfig {
	return RuleCheckerConfig{
		LargeChangeLines: 1000,
		BurstWindow:      10 * time.Minute,
		BurstCount:       5,
	}
}

// RuleChecker evaluates the rule catalogue against a commit batch.
//
// # Thread Safety
//
// RuleChecker is stateless after construction and safe for concurrent
// use. Output order is catalogue order, so identical inputs always
// yield an identical violation list.
type RuleChecker struct {
	rules []Rule
	order map[ViolationCode]int
}

// NewRuleChecker creates a checker with the default catalogue.
func NewRuleChecker(cfg RuleCheckerConfig) *RuleChecker {
	if cfg.LargeChangeLines <= 0 {
		cfg.LargeChangeLines = DefaultRuleCheckerConfig().LargeChangeLines
	}
	if cfg.BurstCount <= 0 || cfg.BurstWindow <= 0 {
		def := DefaultRuleCheckerConfig()
		cfg.BurstWindow, cfg.BurstCount = def.BurstWindow, def.BurstCount
	}
	return NewRuleCheckerWithRules([]Rule{
		suspiciousPatternRule{window: cfg.BurstWindow, count: cfg.BurstCount},
		largeChangeRule{threshold: cfg.LargeChangeLines},
		sensitiveFileRule{},
		unverifiedAuthorRule{},
	})
}

// NewRuleCheckerWithRules creates a checker with an explicit catalogue.
// The catalogue's slice order is the reported order.
func NewRuleCheckerWithRules(rules []Rule) *RuleChecker {
	order := make(map[ViolationCode]int, len(rules))
	for i, r := range rules {
		order[r.Code()] = i
	}
	return &RuleChecker{rules: rules, order: order}
}

// Check evaluates every catalogue rule against the batch.
//
// # Inputs
//
//   - commits: The batch. An empty batch fires no rules.
//   - repo: Repository context for rules that need it.
//
// # Outputs
//
//   - []Violation: At most one violation per catalogue code, in
//     catalogue order. Never nil.
func (rc *RuleChecker) Check(commits []CommitRecord, repo RepositoryContext) []Violation {
	violations := make([]Violation, 0)
	for _, r := range rc.rules {
		if msg := r.Check(commits, repo); msg != "" {
			violations = append(violations, Violation{Code: r.Code(), Message: msg})
		}
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return rc.order[violations[i].Code] < rc.order[violations[j].Code]
	})
	return violations
}

// =============================================================================
// Catalogue Rules
// =============================================================================

// suspiciousPatternRule fires when many commits land in a very short
// window, the signature of scripted or force-pushed activity.
type suspiciousPatternRule struct {
	window time.Duration
	count  int
}

func (suspiciousPatternRule) Code() ViolationCode { return CodeSuspiciousCommitPattern }

func (r suspiciousPatternRule) Check(commits []CommitRecord, _ RepositoryContext) string {
	times := make([]time.Time, 0, len(commits))
	for _, c := range commits {
		if !c.Timestamp.IsZero() {
			times = append(times, c.Timestamp)
		}
	}
	if len(times) < r.count {
		return ""
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 0; i+r.count-1 < len(times); i++ {
		if times[i+r.count-1].Sub(times[i]) <= r.window {
			return fmt.Sprintf("%d commits within %s", r.count, r.window)
		}
	}
	return ""
}

// largeChangeRule fires when any single commit adds and deletes more
// lines than the configured threshold.
type largeChangeRule struct {
	threshold int
}

func (largeChangeRule) Code() ViolationCode { return CodeLargeFileChanges }

func (r largeChangeRule) Check(commits []CommitRecord, _ RepositoryContext) string {
	for _, c := range commits {
		if c.LinesAdded+c.LinesDeleted > r.threshold {
			return fmt.Sprintf("commit %s changes %d lines (threshold %d)",
				c.ID, c.LinesAdded+c.LinesDeleted, r.threshold)
		}
	}
	return ""
}

// sensitiveFileRule fires when any changed file name looks like
// credentials or key material.
type sensitiveFileRule struct{}

func (sensitiveFileRule) Code() ViolationCode { return CodeSensitiveFileChanges }

func (sensitiveFileRule) Check(commits []CommitRecord, _ RepositoryContext) string {
	for _, c := range commits {
		for _, f := range c.FilesChanged {
			if sensitiveNamePattern.MatchString(f) {
				return fmt.Sprintf("commit %s touches sensitive file %s", c.ID, f)
			}
		}
	}
	return ""
}

// unverifiedAuthorRule fires when any commit arrives without author
// attribution.
type unverifiedAuthorRule struct{}

func (unverifiedAuthorRule) Code() ViolationCode { return CodeUnverifiedAuthor }

func (unverifiedAuthorRule) Check(commits []CommitRecord, _ RepositoryContext) string {
	for _, c := range commits {
		if c.Author == "" {
			return fmt.Sprintf("commit %s has no author", c.ID)
		}
	}
	return ""
}
