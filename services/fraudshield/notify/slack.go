// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotConfigured is returned by channels missing required
// configuration. Callers typically skip such channels at assembly
// time via Configured().
var ErrNotConfigured = errors.New("channel not configured")

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	// WebhookURL is the Slack incoming-webhook URL.
	WebhookURL string `yaml:"webhook_url"`

	// Timeout bounds a single send. Default 10s.
	Timeout time.Duration `yaml:"timeout"`
}

// SlackChannel posts alert messages to a Slack incoming webhook.
type SlackChannel struct {
	cfg    SlackConfig
	client *http.Client
}

// NewSlackChannel creates a Slack channel.
func NewSlackChannel(cfg SlackConfig) *SlackChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SlackChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Channel.
func (c *SlackChannel) Name() string { return "slack" }

// Configured reports whether the channel has a webhook URL.
func (c *SlackChannel) Configured() bool { return c.cfg.WebhookURL != "" }

// Send implements Channel. Recipients are ignored; the webhook fixes
// the destination.
func (c *SlackChannel) Send(ctx context.Context, subject, body string, _ []string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s*\n%s", subject, body),
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
