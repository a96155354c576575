// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fraudshield

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fraudshieldai/fraudshield/services/fraudshield/config"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/engine"
)

// Webhook sources.
const (
	sourceGitHub = "github"
	sourceGitLab = "gitlab"
)

// Event kinds after normalization.
const (
	kindPush    = "push"
	kindMerge   = "merge"
	kindIgnored = "ignored"
)

var (
	// ErrInvalidSignature means signature or token verification failed.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUnknownSource means neither a GitHub nor a GitLab event header
	// was present.
	ErrUnknownSource = errors.New("unknown webhook source")
)

var payloadValidator = validator.New()

// webhookEvent is a provider-neutral view of an incoming delivery.
type webhookEvent struct {
	Source  string
	Kind    string
	Repo    engine.RepositoryContext
	Commits []engine.CommitRecord

	// Reason explains why an event was ignored.
	Reason string
}

// detectSource inspects provider event headers. GitLab is checked
// first because some proxies forward both header sets.
func detectSource(header http.Header) (source, eventType string, err error) {
	if ev := header.Get("X-Gitlab-Event"); ev != "" {
		return sourceGitLab, normalizeEventType(ev), nil
	}
	if ev := header.Get("X-GitHub-Event"); ev != "" {
		return sourceGitHub, normalizeEventType(ev), nil
	}
	return "", "", ErrUnknownSource
}

// normalizeEventType maps provider spellings onto a small shared set.
// GitLab sends "Push Hook" and "Merge Request Hook"; GitHub sends
// "push" and "pull_request".
func normalizeEventType(ev string) string {
	switch strings.ToLower(strings.TrimSpace(ev)) {
	case "push", "push hook":
		return "push"
	case "pull_request", "merge_request", "merge request hook":
		return "merge_request"
	default:
		return strings.ToLower(strings.TrimSpace(ev))
	}
}

// verifySignature checks the provider's authentication material against
// the configured secrets. A source whose secret is not configured is
// accepted without verification.
func verifySignature(cfg config.WebhookConfig, source string, header http.Header, body []byte) error {
	switch source {
	case sourceGitHub:
		if cfg.GitHubSecret == "" {
			return nil
		}
		sig := header.Get("X-Hub-Signature-256")
		if !strings.HasPrefix(sig, "sha256=") {
			return ErrInvalidSignature
		}
		want, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
		if err != nil {
			return ErrInvalidSignature
		}
		mac := hmac.New(sha256.New, []byte(cfg.GitHubSecret))
		mac.Write(body)
		if !hmac.Equal(mac.Sum(nil), want) {
			return ErrInvalidSignature
		}
		return nil

	case sourceGitLab:
		if cfg.GitLabToken == "" {
			return nil
		}
		token := header.Get("X-Gitlab-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.GitLabToken)) != 1 {
			return ErrInvalidSignature
		}
		return nil

	default:
		return ErrUnknownSource
	}
}

// Provider payload shapes. Only the fields the pipeline consumes are
// declared; everything else in the delivery is ignored.

type pushPayload struct {
	Repository struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
		URL      string `json:"url"`
		HTMLURL  string `json:"html_url"`
	} `json:"repository"`

	// GitLab puts the canonical project identity here.
	Project struct {
		Name   string `json:"name"`
		ID     int64  `json:"id"`
		WebURL string `json:"web_url"`
	} `json:"project"`

	Commits []struct {
		ID        string    `json:"id"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
		Author    struct {
			Name string `json:"name"`
		} `json:"author"`
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
}

type mergePayload struct {
	// GitLab merge request events.
	ObjectAttributes struct {
		State          string `json:"state"`
		Title          string `json:"title"`
		MergeCommitSHA string `json:"merge_commit_sha"`
		LastCommit     struct {
			ID        string    `json:"id"`
			Message   string    `json:"message"`
			Timestamp time.Time `json:"timestamp"`
			Author    struct {
				Name string `json:"name"`
			} `json:"author"`
		} `json:"last_commit"`
	} `json:"object_attributes"`

	// GitHub pull request events.
	PullRequest struct {
		Merged         bool   `json:"merged"`
		Title          string `json:"title"`
		MergeCommitSHA string `json:"merge_commit_sha"`
	} `json:"pull_request"`

	Repository struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
		HTMLURL  string `json:"html_url"`
	} `json:"repository"`

	Project struct {
		Name   string `json:"name"`
		WebURL string `json:"web_url"`
	} `json:"project"`
}

// parseEvent normalizes a verified delivery into a webhookEvent.
//
// # Edge Cases
//
//   - Unknown event types produce Kind "ignored", not an error.
//   - Merge events are analyzed only once merged; open or closed
//     unmerged requests are ignored.
//   - A push with no commits is still a valid event; the engine
//     stores a zero-risk result for it.
func parseEvent(source, eventType string, body []byte) (*webhookEvent, error) {
	switch eventType {
	case "push":
		return parsePush(source, body)
	case "merge_request":
		return parseMerge(source, body)
	default:
		return &webhookEvent{
			Source: source,
			Kind:   kindIgnored,
			Reason: fmt.Sprintf("event type %s not processed", eventType),
		}, nil
	}
}

func parsePush(source string, body []byte) (*webhookEvent, error) {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode push payload: %w", err)
	}

	repo := engine.RepositoryContext{
		Name:      firstNonEmpty(p.Project.Name, p.Repository.Name, "unknown"),
		ID:        firstNonEmpty(repoID(p), p.Repository.FullName),
		URL:       firstNonEmpty(p.Project.WebURL, p.Repository.HTMLURL, p.Repository.URL),
		Timestamp: time.Now().UTC(),
	}

	commits := make([]engine.CommitRecord, 0, len(p.Commits))
	for _, c := range p.Commits {
		record := engine.CommitRecord{
			ID:           c.ID,
			Message:      c.Message,
			Author:       c.Author.Name,
			Timestamp:    c.Timestamp,
			FilesChanged: concatFiles(c.Added, c.Modified, c.Removed),
		}
		if err := payloadValidator.Struct(record); err != nil {
			return nil, fmt.Errorf("invalid commit in payload: %w", err)
		}
		commits = append(commits, record)
	}

	if err := payloadValidator.Struct(repo); err != nil {
		return nil, fmt.Errorf("invalid repository in payload: %w", err)
	}

	return &webhookEvent{Source: source, Kind: kindPush, Repo: repo, Commits: commits}, nil
}

func parseMerge(source string, body []byte) (*webhookEvent, error) {
	var p mergePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode merge payload: %w", err)
	}

	merged := p.PullRequest.Merged || p.ObjectAttributes.State == "merged"
	if !merged {
		return &webhookEvent{
			Source: source,
			Kind:   kindIgnored,
			Reason: "merge request not merged, skipping analysis",
		}, nil
	}

	repo := engine.RepositoryContext{
		Name:      firstNonEmpty(p.Project.Name, p.Repository.Name, "unknown"),
		ID:        p.Repository.FullName,
		URL:       firstNonEmpty(p.Project.WebURL, p.Repository.HTMLURL),
		Timestamp: time.Now().UTC(),
	}
	if err := payloadValidator.Struct(repo); err != nil {
		return nil, fmt.Errorf("invalid repository in payload: %w", err)
	}

	// GitLab carries the merge request's head commit inline; GitHub
	// only references the merge commit SHA. Either way a one-commit
	// batch covers the merged change.
	var commits []engine.CommitRecord
	lc := p.ObjectAttributes.LastCommit
	switch {
	case lc.ID != "":
		commits = append(commits, engine.CommitRecord{
			ID:        lc.ID,
			Message:   firstNonEmpty(lc.Message, p.ObjectAttributes.Title),
			Author:    lc.Author.Name,
			Timestamp: lc.Timestamp,
		})
	case p.PullRequest.MergeCommitSHA != "":
		commits = append(commits, engine.CommitRecord{
			ID:        p.PullRequest.MergeCommitSHA,
			Message:   p.PullRequest.Title,
			Timestamp: time.Now().UTC(),
		})
	}

	return &webhookEvent{Source: source, Kind: kindMerge, Repo: repo, Commits: commits}, nil
}

func repoID(p pushPayload) string {
	if p.Project.ID != 0 {
		return fmt.Sprintf("%d", p.Project.ID)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func concatFiles(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
