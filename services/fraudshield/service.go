// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fraudshield is the HTTP service that fronts the fraud
// analysis engine: webhook ingestion, reporting endpoints, and alert
// administration.
package fraudshield

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fraudshieldai/fraudshield/pkg/logging"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/config"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/engine"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/notify"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/observability"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/storage/badgerstore"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/telemetry"
)

// ServiceVersion is the fraud analysis service version.
const ServiceVersion = "1.0.0"

// analysisTimeout bounds a single background analysis run.
const analysisTimeout = 30 * time.Second

// Service owns the long-lived collaborators: store, engine, metrics,
// notification channels, and the optional config watcher.
//
// # Thread Safety
//
// The engine and config snapshots are swapped atomically on hot
// reload; request handlers always read a consistent pair.
type Service struct {
	log     *logging.Logger
	store   *badgerstore.Store
	metrics *observability.Metrics

	engine atomic.Pointer[engine.Engine]
	cfg    atomic.Pointer[config.Config]

	// sem bounds concurrent background analyses.
	sem chan struct{}
	wg  sync.WaitGroup

	configPath string
	watcher    *config.Watcher
}

// NewService wires a Service from config.
//
// # Inputs
//
//   - cfg: validated configuration.
//   - logger: service logger. Nil selects the default stderr logger.
//
// # Outputs
//
//   - *Service: ready for Run. Call Close when done.
//   - error: non-nil if the store cannot be opened or the engine
//     cannot be built.
func NewService(cfg config.Config, logger *logging.Logger) (*Service, error) {
	return newService(cfg, logger, prometheus.DefaultRegisterer)
}

// newService exists so tests can isolate their metrics registry.
func newService(cfg config.Config, logger *logging.Logger, reg prometheus.Registerer) (*Service, error) {
	if logger == nil {
		logger = logging.Default()
	}

	storeCfg := badgerstore.DefaultConfig(cfg.Storage.Path)
	if cfg.Storage.InMemory {
		storeCfg = badgerstore.InMemoryConfig()
	}
	storeCfg.Logger = logger.Slog()
	store, err := badgerstore.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Service{
		log:     logger,
		store:   store,
		metrics: observability.NewMetrics(reg),
		sem:     make(chan struct{}, cfg.Webhook.MaxPending),
	}
	if err := s.applyConfig(cfg); err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// WithConfigFile enables hot reload of tunable thresholds from the
// given config file. Must be called before Run.
func (s *Service) WithConfigFile(path string) *Service {
	s.configPath = path
	return s
}

// applyConfig swaps in a new config snapshot and rebuilds the engine
// around it. Safe to call while requests are in flight.
func (s *Service) applyConfig(cfg config.Config) error {
	eng, err := s.buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	s.cfg.Store(&cfg)
	s.engine.Store(eng)
	return nil
}

func (s *Service) buildEngine(cfg config.Config) (*engine.Engine, error) {
	rules := engine.DefaultRuleCheckerConfig()
	rules.LargeChangeLines = cfg.Analysis.LargeChangeLines

	eng, err := engine.New(engine.Config{
		AlertThreshold:  cfg.Analysis.AlertThreshold,
		AlertRecipients: cfg.Analysis.AlertRecipients,
		Rules:           rules,
		Bands: engine.RecommenderConfig{
			HighBand:     cfg.Analysis.HighBand,
			ElevatedBand: cfg.Analysis.ElevatedBand,
		},
	}, s.store)
	if err != nil {
		return nil, err
	}

	var channels []engine.Notifier
	slack := notify.NewSlackChannel(notify.SlackConfig{WebhookURL: cfg.Notify.SlackWebhookURL})
	if slack.Configured() {
		channels = append(channels, slack)
	}
	email := notify.NewEmailChannel(notify.EmailConfig{
		Host:     cfg.Notify.SMTPHost,
		Port:     cfg.Notify.SMTPPort,
		Sender:   cfg.Notify.SMTPSender,
		Password: cfg.Notify.SMTPPassword,
	})
	if email.Configured() {
		channels = append(channels, email)
	}

	return eng.
		WithChannels(channels...).
		WithMetrics(s.metrics).
		WithLogger(s.log.Slog()), nil
}

// currentEngine returns the engine for the live config snapshot.
func (s *Service) currentEngine() *engine.Engine {
	return s.engine.Load()
}

// currentConfig returns the live config snapshot.
func (s *Service) currentConfig() config.Config {
	return *s.cfg.Load()
}

// schedule runs the analysis for a webhook event on a background
// goroutine. Returns false when the pending queue is full; the event
// is then dropped and the caller reports back-pressure.
func (s *Service) schedule(ev *webhookEvent) bool {
	select {
	case s.sem <- struct{}{}:
	default:
		return false
	}

	s.wg.Add(1)
	s.metrics.PendingAnalyses.Inc()
	go func() {
		defer func() {
			<-s.sem
			s.metrics.PendingAnalyses.Dec()
			s.wg.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
		defer cancel()

		ctx, span := telemetry.StartSpan(ctx, "fraudshield", "Engine.AnalyzeRepository")
		defer span.End()

		if _, err := s.currentEngine().AnalyzeRepository(ctx, ev.Repo, ev.Commits); err != nil {
			telemetry.RecordError(span, err)
			s.log.Error("background analysis failed",
				"repository", ev.Repo.Name, "source", ev.Source, "error", err)
		}
	}()
	return true
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// drains in-flight analyses and shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	cfg := s.currentConfig()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "fraudshield",
		ServiceVersion: ServiceVersion,
		Environment:    telemetry.DefaultConfig().Environment,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	if s.configPath != "" {
		watcher, err := config.NewWatcher(s.configPath, s.log.Slog(), func(next config.Config) {
			if err := s.applyConfig(next); err != nil {
				s.log.Error("config reload rejected", "error", err)
				return
			}
			s.log.Info("config reloaded",
				"alert_threshold", next.Analysis.AlertThreshold)
		})
		if err != nil {
			s.log.Warn("config hot reload disabled", "error", err)
		} else {
			s.watcher = watcher
		}
	}

	router := s.buildRouter()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("fraud analysis service listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown failed", "error", err)
	}
	s.wg.Wait()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		s.log.Error("telemetry shutdown failed", "error", err)
	}
	return nil
}

func (s *Service) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handlers := NewHandlers(s)
	RegisterRoutes(router, handlers, s.currentConfig().Webhook)
	return router
}

// Close releases the watcher and the store. Call after Run returns.
func (s *Service) Close() error {
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.log.Warn("closing config watcher", "error", err)
		}
	}
	return s.store.Close()
}
