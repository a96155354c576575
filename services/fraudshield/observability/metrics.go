// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the fraud
// analysis service.
//
// # Description
//
// Metrics cover the three stages an event passes through:
//   - Webhook ingestion (accepted, rejected, dropped counters)
//   - Analysis pipeline (analyses, risk score histogram, violations)
//   - Alerting (alerts raised, notification failures by channel)
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus
// plus Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "fraudshield"

// Subsystem for pipeline metrics
const pipelineSubsystem = "pipeline"

// Subsystem for ingestion metrics
const webhookSubsystem = "webhook"

// Metrics holds all Prometheus metrics for the fraud analysis
// pipeline. Initialize once at startup via NewMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// AnalysesTotal counts completed analyses.
	// Labels: alerted (true, false)
	AnalysesTotal *prometheus.CounterVec

	// RiskScore measures the distribution of aggregated risk scores.
	RiskScore prometheus.Histogram

	// ViolationsTotal counts rule violations across all analyses.
	ViolationsTotal prometheus.Counter

	// AlertsTotal counts alerts raised, labeled by severity.
	// Labels: severity (high, critical)
	AlertsTotal *prometheus.CounterVec

	// NotifyFailuresTotal counts failed alert deliveries by channel.
	// Labels: channel (slack, email)
	NotifyFailuresTotal *prometheus.CounterVec

	// WebhooksTotal counts webhook deliveries by source and outcome.
	// Labels: source (github, gitlab), outcome (accepted, rejected, dropped)
	WebhooksTotal *prometheus.CounterVec

	// PendingAnalyses tracks background analyses in flight.
	PendingAnalyses prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics on the given
// registerer. Pass nil to use the Prometheus default registry.
//
// # Limitations
//
//   - Panics if called twice on the same registerer (duplicate
//     registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "analyses_total",
				Help:      "Total completed fraud analyses by alert outcome",
			},
			[]string{"alerted"},
		),

		RiskScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "risk_score",
				Help:      "Distribution of aggregated risk scores",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),

		ViolationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "violations_total",
				Help:      "Total rule violations detected across analyses",
			},
		),

		AlertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "alerts_total",
				Help:      "Total alerts raised by severity",
			},
			[]string{"severity"},
		),

		NotifyFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "notify_failures_total",
				Help:      "Total failed alert deliveries by channel",
			},
			[]string{"channel"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: webhookSubsystem,
				Name:      "deliveries_total",
				Help:      "Total webhook deliveries by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		PendingAnalyses: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: webhookSubsystem,
				Name:      "pending_analyses",
				Help:      "Background analyses currently in flight",
			},
		),
	}
}

// ObserveAnalysis records one completed analysis. Implements the
// engine's MetricsRecorder contract.
func (m *Metrics) ObserveAnalysis(riskScore float64, violations int, alerted bool) {
	label := "false"
	if alerted {
		label = "true"
	}
	m.AnalysesTotal.WithLabelValues(label).Inc()
	m.RiskScore.Observe(riskScore)
	m.ViolationsTotal.Add(float64(violations))
}

// ObserveAlert records an alert raised at the given severity.
func (m *Metrics) ObserveAlert(severity string) {
	m.AlertsTotal.WithLabelValues(severity).Inc()
}

// ObserveNotifyFailure records a failed delivery on the named channel.
func (m *Metrics) ObserveNotifyFailure(channel string) {
	m.NotifyFailuresTotal.WithLabelValues(channel).Inc()
}

// Webhook delivery outcomes.
const (
	// OutcomeAccepted means the payload was verified and queued.
	OutcomeAccepted = "accepted"

	// OutcomeRejected means signature or payload validation failed.
	OutcomeRejected = "rejected"

	// OutcomeDropped means the background queue was full.
	OutcomeDropped = "dropped"
)

// ObserveWebhook records one webhook delivery.
func (m *Metrics) ObserveWebhook(source, outcome string) {
	m.WebhooksTotal.WithLabelValues(source, outcome).Inc()
}
