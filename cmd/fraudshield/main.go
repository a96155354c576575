// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command fraudshield runs the fraud analysis service that watches
// version-control activity for suspicious patterns.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fraudshieldai/fraudshield/pkg/logging"
	"github.com/fraudshieldai/fraudshield/services/fraudshield"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/config"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/engine"
)

var (
	configFile string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "fraudshield",
		Short: "Fraud analysis for version-control activity",
		Long: `Fraud Shield ingests push and merge webhooks from GitHub and
GitLab, scores each commit batch for anomalous and rule-breaking
activity, and raises alerts over Slack and email when the combined
risk crosses the configured threshold.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the fraud analysis HTTP service",
		RunE:  runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the service version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fraudshield %s (engine %s)\n",
				fraudshield.ServiceVersion, engine.EngineVersion)
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "",
		"path to YAML config file (env overrides still apply)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "",
		"override configured log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "fraudshield",
		JSON:    cfg.Logging.JSON,
	})
	if err != nil {
		// File logging failed; stderr logging still works.
		logger.Warn("file logging unavailable", "error", err)
	}
	defer logger.Close()

	svc, err := fraudshield.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer svc.Close()

	if configFile != "" {
		svc.WithConfigFile(configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
