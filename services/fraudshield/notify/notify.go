// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify implements alert notification channels.
//
// Channels are fire-and-forget from the engine's point of view: a
// send either succeeds or returns an error that the caller logs and
// drops. Delivery guarantees beyond that are channel-specific and out
// of scope.
package notify

import "context"

// Channel is a notification destination. Implementations must be
// safe for concurrent use.
type Channel interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// Send delivers one message. Recipients may be ignored by
	// channels with a fixed destination (e.g. a Slack webhook).
	Send(ctx context.Context, subject, body string, recipients []string) error
}

var (
	_ Channel = (*SlackChannel)(nil)
	_ Channel = (*EmailChannel)(nil)
)
