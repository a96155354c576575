// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Fraud Shield
// components.
//
// The package is built on the standard library slog package with two
// destinations:
//
//   - stderr output by default (text for humans, JSON when configured)
//   - optional file logging with automatic directory creation
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("analysis complete", "repository", repo.Name, "risk_score", score)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "/var/log/fraudshield",
//	    Service: "fraudshield",
//	})
//	defer logger.Close()
//
// File logs are named {service}_{date}.log and are always JSON, since
// they are intended for machine processing.
//
// # Log Levels
//
// Four levels are supported, matching slog conventions:
//
//   - Debug: development troubleshooting, verbose output
//   - Info: normal operations (webhook received, analysis stored)
//   - Warn: recoverable issues (degraded assessment, channel failure)
//   - Error: operation failures the service survives
//
// # Thread Safety
//
// Logger is safe for concurrent use. The underlying slog.Logger is
// thread-safe and file cleanup is mutex-protected.
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must not log webhook secrets or SMTP credentials:
//
//	// BAD: logs the secret
//	logger.Info("webhook", "secret", cfg.GitHubSecret)
//
//	// GOOD: log presence only
//	logger.Info("webhook", "secret_configured", cfg.GitHubSecret != "")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels.
//
// Levels follow the slog convention and are ordered by severity:
// Debug < Info < Warn < Error. Setting a minimum level filters out
// all logs below that level.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational events.
	LevelInfo

	// LevelWarn is for recoverable issues such as degraded mode.
	LevelWarn

	// LevelError is for operation failures the service survives.
	LevelError
)

// ParseLevel maps a configuration string to a Level. Unknown strings
// map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures Logger behavior.
//
// The zero value logs Info and above to stderr in text format, which
// is correct for interactive CLI use.
type Config struct {
	// Level is the minimum log level. Messages below this level are
	// discarded.
	Level Level

	// LogDir enables file logging to the given directory when
	// non-empty. Supports ~ expansion. The directory is created if it
	// does not exist.
	LogDir string

	// Service is attached to every entry as the "service" attribute
	// and used in log file names. Defaults to "fraudshield".
	Service string

	// JSON switches stderr output to JSON format. File output is
	// always JSON regardless of this setting.
	JSON bool

	// Quiet disables stderr output. Useful when only file logs are
	// wanted.
	Quiet bool
}

// Logger wraps slog.Logger with multi-destination output and file
// cleanup.
//
// # Thread Safety
//
// Safe for concurrent use.
type Logger struct {
	slog *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// Default returns a stderr-only logger at Info level. It never fails.
func Default() *Logger {
	l, _ := New(Config{})
	return l
}

// New creates a Logger from config.
//
// # Inputs
//
//   - cfg: logging configuration. Zero value is valid.
//
// # Outputs
//
//   - *Logger: ready to use. Call Close when file logging is enabled.
//   - error: non-nil if the log directory or file cannot be created.
//     The returned logger still works with stderr only, so callers
//     may treat the error as a warning.
func New(cfg Config) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}

	l := &Logger{}
	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	var fileErr error
	if cfg.LogDir != "" {
		f, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fileErr = err
		} else {
			l.file = f
			writers = append(writers, f)
		}
	}

	var handler slog.Handler
	switch {
	case len(writers) == 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case cfg.JSON || l.file != nil:
		// Mixed destinations settle on JSON so the file content stays
		// machine-parseable.
		handler = slog.NewJSONHandler(io.MultiWriter(writers...), opts)
	default:
		handler = slog.NewTextHandler(io.MultiWriter(writers...), opts)
	}

	sl := slog.New(handler)
	if cfg.Service != "" {
		sl = sl.With("service", cfg.Service)
	}
	l.slog = sl
	return l, fileErr
}

// openLogFile creates the log directory and opens the dated log file
// in append mode.
func openLogFile(dir, service string) (*os.File, error) {
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expand log directory: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	if service == "" {
		service = "fraudshield"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Slog exposes the underlying slog.Logger for collaborators that
// accept one directly.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// With returns a child slog logger carrying extra attributes.
func (l *Logger) With(args ...any) *slog.Logger {
	return l.slog.With(args...)
}

// Debug logs at debug level with optional key-value attributes.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at info level with optional key-value attributes.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at warn level with optional key-value attributes.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at error level with optional key-value attributes.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Close flushes and closes the log file, if any. Safe to call
// multiple times.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
