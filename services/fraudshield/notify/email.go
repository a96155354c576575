// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailConfig configures the SMTP email channel.
type EmailConfig struct {
	// Host and Port locate the SMTP server.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Sender is the From address and SMTP auth user.
	Sender string `yaml:"sender"`

	// Password is the SMTP auth password. Empty disables auth.
	Password string `yaml:"password"`
}

// EmailChannel sends alert email over SMTP.
type EmailChannel struct {
	cfg  EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates an email channel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailChannel{cfg: cfg, send: smtp.SendMail}
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Configured reports whether the channel has a server and sender.
func (c *EmailChannel) Configured() bool {
	return c.cfg.Host != "" && c.cfg.Sender != ""
}

// Send implements Channel.
//
// The message body carries a fixed footer identifying the system, so
// recipients can filter automated alerts. STARTTLS is negotiated by
// net/smtp when the server advertises it.
func (c *EmailChannel) Send(ctx context.Context, subject, body string, recipients []string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if c.cfg.Password != "" {
		auth = smtp.PlainAuth("", c.cfg.Sender, c.cfg.Password, c.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + c.cfg.Sender,
		"To: " + strings.Join(recipients, ", "),
		"Subject: Fraud Shield Alert: " + subject,
		"",
		body,
		"",
		"--",
		"Fraud Shield",
		"Security Monitoring System",
		"",
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	if err := c.send(addr, auth, c.cfg.Sender, recipients, []byte(msg)); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
