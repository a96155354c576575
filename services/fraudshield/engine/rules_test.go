// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(violations []Violation) []ViolationCode {
	out := make([]ViolationCode, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Code)
	}
	return out
}

// TestCheckCatalogueOrder verifies a commit changing credentials.txt
// and adding 10,000 lines reports both the large-change and
// sensitive-filename violations, in catalogue order.
func TestCheckCatalogueOrder(t *testing.T) {
	rc := NewRuleChecker(DefaultRuleCheckerConfig())
	violations := rc.Check([]CommitRecord{
		{
			ID:           "c1",
			Author:       "dev",
			FilesChanged: []string{"credentials.txt"},
			LinesAdded:   10000,
			Timestamp:    daytime(0),
		},
	}, RepositoryContext{Name: "payments"})

	assert.Equal(t, []ViolationCode{CodeLargeFileChanges, CodeSensitiveFileChanges}, codes(violations))
}

// TestCheckDeterministic verifies identical input yields an identical
// violation list.
func TestCheckDeterministic(t *testing.T) {
	commits := []CommitRecord{
		{ID: "c1", Author: "dev", FilesChanged: []string{".env"}, LinesAdded: 5000, Timestamp: daytime(0)},
	}
	rc := NewRuleChecker(DefaultRuleCheckerConfig())
	repo := RepositoryContext{Name: "payments"}
	assert.Equal(t, rc.Check(commits, repo), rc.Check(commits, repo))
}

// TestCheckEmptyBatch verifies an empty batch fires nothing.
func TestCheckEmptyBatch(t *testing.T) {
	rc := NewRuleChecker(DefaultRuleCheckerConfig())
	violations := rc.Check(nil, RepositoryContext{})
	require.NotNil(t, violations)
	assert.Empty(t, violations)
}

// TestCheckViolationOncePerBatch verifies a rule firing on several
// commits still reports a single batch-level violation.
func TestCheckViolationOncePerBatch(t *testing.T) {
	rc := NewRuleChecker(DefaultRuleCheckerConfig())
	violations := rc.Check([]CommitRecord{
		{ID: "c1", Author: "dev", FilesChanged: []string{"secret.yaml"}, Timestamp: daytime(0)},
		{ID: "c2", Author: "dev", FilesChanged: []string{"password.txt"}, Timestamp: daytime(20)},
	}, RepositoryContext{})

	assert.Equal(t, []ViolationCode{CodeSensitiveFileChanges}, codes(violations))
}

// TestSuspiciousPatternRule exercises the burst window boundary.
func TestSuspiciousPatternRule(t *testing.T) {
	base := daytime(0)
	mkCommits := func(n int, gap time.Duration) []CommitRecord {
		out := make([]CommitRecord, n)
		for i := range out {
			out[i] = CommitRecord{
				ID:        string(rune('a' + i)),
				Author:    "dev",
				Timestamp: base.Add(time.Duration(i) * gap),
			}
		}
		return out
	}

	tests := []struct {
		name    string
		commits []CommitRecord
		fires   bool
	}{
		{"five commits in two minutes", mkCommits(5, 30*time.Second), true},
		{"five commits spread over an hour", mkCommits(5, 15*time.Minute), false},
		{"four commits cannot fire", mkCommits(4, time.Second), false},
	}

	rc := NewRuleChecker(DefaultRuleCheckerConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rc.Check(tt.commits, RepositoryContext{})
			if tt.fires {
				assert.Equal(t, []ViolationCode{CodeSuspiciousCommitPattern}, codes(got))
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

// TestUnverifiedAuthorRule verifies commits without attribution fire
// the catalogue's author rule.
func TestUnverifiedAuthorRule(t *testing.T) {
	rc := NewRuleChecker(DefaultRuleCheckerConfig())
	violations := rc.Check([]CommitRecord{
		{ID: "c1", Author: "", FilesChanged: []string{"main.go"}, Timestamp: daytime(0)},
	}, RepositoryContext{})
	assert.Equal(t, []ViolationCode{CodeUnverifiedAuthor}, codes(violations))
}

// customRule demonstrates the open/closed contract: new rules slot in
// without touching existing rule logic.
type customRule struct{}

func (customRule) Code() ViolationCode { return "merge_to_protected_branch" }

func (customRule) Check(commits []CommitRecord, _ RepositoryContext) string {
	for _, c := range commits {
		if c.Message == "merge to main" {
			return "direct merge to protected branch"
		}
	}
	return ""
}

// TestCustomRuleAddition verifies an externally defined rule
// participates in checking and ordering.
func TestCustomRuleAddition(t *testing.T) {
	rc := NewRuleCheckerWithRules([]Rule{customRule{}, sensitiveFileRule{}})
	violations := rc.Check([]CommitRecord{
		{ID: "c1", Author: "dev", Message: "merge to main", FilesChanged: []string{"vault.key"}},
	}, RepositoryContext{})

	assert.Equal(t, []ViolationCode{"merge_to_protected_branch", CodeSensitiveFileChanges}, codes(violations))
}
