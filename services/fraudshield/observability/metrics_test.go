// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// newTestMetrics creates Metrics on an isolated registry so tests do
// not collide with the global Prometheus registry.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestObserveAnalysis(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveAnalysis(0.85, 2, true)
	m.ObserveAnalysis(0.10, 0, false)
	m.ObserveAnalysis(0.95, 3, true)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("true")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("false")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.ViolationsTotal))
}

func TestObserveAlertBySeverity(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveAlert("high")
	m.ObserveAlert("high")
	m.ObserveAlert("critical")

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.AlertsTotal.WithLabelValues("high")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.AlertsTotal.WithLabelValues("critical")))
}

func TestObserveNotifyFailure(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveNotifyFailure("slack")
	m.ObserveNotifyFailure("slack")
	m.ObserveNotifyFailure("email")

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.NotifyFailuresTotal.WithLabelValues("slack")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.NotifyFailuresTotal.WithLabelValues("email")))
}

func TestObserveWebhookOutcomes(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveWebhook("github", OutcomeAccepted)
	m.ObserveWebhook("github", OutcomeRejected)
	m.ObserveWebhook("gitlab", OutcomeDropped)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.WebhooksTotal.WithLabelValues("github", OutcomeAccepted)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.WebhooksTotal.WithLabelValues("github", OutcomeRejected)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.WebhooksTotal.WithLabelValues("gitlab", OutcomeDropped)))
}

func TestPendingAnalysesGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.PendingAnalyses.Inc()
	m.PendingAnalyses.Inc()
	m.PendingAnalyses.Dec()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PendingAnalyses))
}
