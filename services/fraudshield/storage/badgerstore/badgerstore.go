// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badgerstore persists analysis results and alerts in
// BadgerDB.
//
// BadgerDB gives the service durable embedded storage with
// low-latency writes and no external database dependency. Records are
// stored as JSON values under time-ordered keys:
//
//	analysis/<unix-nano>/<id>
//	commit/<unix-nano>/<id>
//	alert/<unix-nano>/<id>
//
// The time prefix makes "most recent first" queries a reverse prefix
// scan. Writes are append-only except alert resolution, which flips a
// single boolean on an existing alert record, so concurrent analysis
// runs never conflict.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fraudshieldai/fraudshield/services/fraudshield/engine"
)

// ErrAlertNotFound is returned when resolving an unknown alert ID.
var ErrAlertNotFound = errors.New("alert not found")

const (
	prefixAnalysis = "analysis/"
	prefixCommit   = "commit/"
	prefixAlert    = "alert/"
)

// Config holds configuration for the store.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before GC runs.
	GCDiscardRatio float64

	// Logger receives store and BadgerDB log output. Nil disables
	// BadgerDB's internal logging.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O,
// no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store is the BadgerDB-backed persistence layer. It satisfies
// engine.Store and additionally serves the reporting surfaces
// (unresolved alerts, aggregate statistics, alert resolution).
//
// # Thread Safety
//
// Store is safe for concurrent use; BadgerDB serializes conflicting
// writes internally.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open opens the store, creating the database directory if needed.
//
// Description:
//
//	Opening is the store's one-time explicit initialization step;
//	there is no lazy table creation on first use. Callers must Close
//	the store on shutdown.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory.
//
// Outputs:
//
//	*Store - The opened store.
//	error - Non-nil if the path is invalid or the database cannot
//	be opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}

	if cfg.GCInterval > 0 {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, ratio)
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

// runGC periodically triggers value log garbage collection.
func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite just means nothing was worth collecting.
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log GC failed", "error", err)
			}
		}
	}
}

// SaveAnalysis stores a repository analysis result.
func (s *Store) SaveAnalysis(ctx context.Context, result *engine.AnalysisResult) error {
	return s.put(ctx, recordKey(prefixAnalysis, result.CreatedAt, result.ID), result)
}

// SaveCommitAnalysis stores a single-commit analysis result.
func (s *Store) SaveCommitAnalysis(ctx context.Context, result *engine.AnalysisResult) error {
	return s.put(ctx, recordKey(prefixCommit, result.CreatedAt, result.ID), result)
}

// SaveAlert stores an alert.
func (s *Store) SaveAlert(ctx context.Context, alert *engine.Alert) error {
	return s.put(ctx, recordKey(prefixAlert, alert.CreatedAt, alert.ID), alert)
}

// UnresolvedAlerts returns unresolved alerts, most recent first,
// bounded by limit.
func (s *Store) UnresolvedAlerts(_ context.Context, limit int) ([]engine.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	alerts := make([]engine.Alert, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixAlert)
		// Reverse iteration starts just past the last alert key.
		for it.Seek(append([]byte(prefixAlert), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var alert engine.Alert
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &alert)
			}); err != nil {
				return err
			}
			if alert.Resolved {
				continue
			}
			alerts = append(alerts, alert)
			if len(alerts) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list unresolved alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert marks the alert with the given ID as resolved.
// Returns ErrAlertNotFound for unknown IDs. Resolving an already
// resolved alert is a no-op.
func (s *Store) ResolveAlert(_ context.Context, alertID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixAlert)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if !strings.HasSuffix(string(key), "/"+alertID) {
				continue
			}
			var alert engine.Alert
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &alert)
			}); err != nil {
				return err
			}
			alert.Resolved = true
			raw, err := json.Marshal(&alert)
			if err != nil {
				return err
			}
			return txn.Set(key, raw)
		}
		return ErrAlertNotFound
	})
	if err != nil && !errors.Is(err, ErrAlertNotFound) {
		return fmt.Errorf("resolve alert %s: %w", alertID, err)
	}
	return err
}

// Stats are the aggregate statistics served by the reporting API.
type Stats struct {
	TotalAnalyses    int     `json:"total_analyses"`
	HighRiskAnalyses int     `json:"high_risk_analyses"`
	ActiveAlerts     int     `json:"active_alerts"`
	AverageRiskScore float64 `json:"average_risk_score"`
}

// Stats computes aggregate statistics over stored repository analyses
// and alerts. highRiskThreshold bounds the high-risk count (strictly
// greater).
func (s *Store) Stats(_ context.Context, highRiskThreshold float64) (Stats, error) {
	var stats Stats
	sum := 0.0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixAnalysis)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var result engine.AnalysisResult
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &result)
			}); err != nil {
				return err
			}
			stats.TotalAnalyses++
			sum += result.RiskScore
			if result.RiskScore > highRiskThreshold {
				stats.HighRiskAnalyses++
			}
		}

		alertPrefix := []byte(prefixAlert)
		for it.Seek(alertPrefix); it.ValidForPrefix(alertPrefix); it.Next() {
			var alert engine.Alert
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &alert)
			}); err != nil {
				return err
			}
			if !alert.Resolved {
				stats.ActiveAlerts++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("compute stats: %w", err)
	}
	if stats.TotalAnalyses > 0 {
		stats.AverageRiskScore = sum / float64(stats.TotalAnalyses)
	}
	return stats, nil
}

// put marshals v and writes it under key.
func (s *Store) put(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	}); err != nil {
		return fmt.Errorf("write record %s: %w", key, err)
	}
	return nil
}

// recordKey builds a time-ordered key: <prefix><unix-nano>/<id>.
func recordKey(prefix string, at time.Time, id string) string {
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("%s%020d/%s", prefix, at.UnixNano(), id)
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
