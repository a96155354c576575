// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates service configuration.
//
// Configuration comes from a YAML file with environment variable
// overrides for secrets, validated once at startup. Tunable analysis
// thresholds can additionally be hot-reloaded through Watcher without
// restarting the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gt=0,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig configures the badger store.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// AnalysisConfig holds the pipeline's tunable thresholds. These are
// the hot-reloadable values.
type AnalysisConfig struct {
	// AlertThreshold is the risk score an analysis must strictly
	// exceed to trigger an alert.
	AlertThreshold float64 `yaml:"alert_threshold" validate:"gte=0,lte=1"`

	// HighBand and ElevatedBand are the recommendation score bands.
	HighBand     float64 `yaml:"high_band" validate:"gte=0,lte=1"`
	ElevatedBand float64 `yaml:"elevated_band" validate:"gte=0,lte=1,ltefield=HighBand"`

	// LargeChangeLines is the per-commit line-change threshold for
	// the large_file_changes rule.
	LargeChangeLines int `yaml:"large_change_lines" validate:"gt=0"`

	// AlertRecipients receive email notifications.
	AlertRecipients []string `yaml:"alert_recipients" validate:"dive,email"`
}

// WebhookConfig configures ingestion.
type WebhookConfig struct {
	// GitHubSecret verifies X-Hub-Signature-256. Empty disables
	// verification for GitHub payloads.
	GitHubSecret string `yaml:"github_secret"`

	// GitLabToken verifies X-Gitlab-Token. Empty disables
	// verification for GitLab payloads.
	GitLabToken string `yaml:"gitlab_token"`

	// RatePerSecond and Burst bound webhook ingestion.
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gt=0"`
	Burst         int     `yaml:"burst" validate:"gt=0"`

	// MaxPending bounds concurrently queued analysis runs.
	MaxPending int `yaml:"max_pending" validate:"gt=0"`
}

// NotifyConfig configures notification channels. Unconfigured
// channels are skipped at assembly time.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url" validate:"omitempty,url"`
	SMTPHost        string `yaml:"smtp_host"`
	SMTPPort        int    `yaml:"smtp_port" validate:"gte=0,lte=65535"`
	SMTPSender      string `yaml:"smtp_sender" validate:"omitempty,email"`
	SMTPPassword    string `yaml:"smtp_password"`
}

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	// TraceExporter selects the trace exporter: otlp, stdout, none.
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`

	// MetricExporter selects the metric exporter: prometheus,
	// stdout, none.
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`

	// OTLPEndpoint is the OTLP trace receiver.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8440,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path: "./data/fraudshield",
		},
		Analysis: AnalysisConfig{
			AlertThreshold:   0.7,
			HighBand:         0.8,
			ElevatedBand:     0.6,
			LargeChangeLines: 1000,
			AlertRecipients:  nil,
		},
		Webhook: WebhookConfig{
			RatePerSecond: 10,
			Burst:         20,
			MaxPending:    64,
		},
		Notify: NotifyConfig{
			SMTPPort: 587,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
		},
	}
}

// Load reads configuration from path, applying defaults for absent
// fields and environment overrides for secrets, then validates.
//
// An empty path yields the validated defaults (plus env overrides),
// so the service can run with no config file at all.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural constraints on a configuration.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides pulls secrets and deploy-time settings from the
// environment so they never need to live in the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FRAUDSHIELD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FRAUDSHIELD_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("FRAUDSHIELD_GITHUB_SECRET"); v != "" {
		cfg.Webhook.GitHubSecret = v
	}
	if v := os.Getenv("FRAUDSHIELD_GITLAB_TOKEN"); v != "" {
		cfg.Webhook.GitLabToken = v
	}
	if v := os.Getenv("FRAUDSHIELD_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.SlackWebhookURL = v
	}
	if v := os.Getenv("FRAUDSHIELD_SMTP_PASSWORD"); v != "" {
		cfg.Notify.SMTPPassword = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}
