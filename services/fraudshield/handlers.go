// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fraudshield

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fraudshieldai/fraudshield/services/fraudshield/engine"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/observability"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/storage/badgerstore"
)

// maxWebhookBody caps webhook payload size at 5 MiB.
const maxWebhookBody = 5 << 20

// ErrorResponse is the JSON error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers contains the HTTP handlers for the fraud analysis service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleWebhook handles POST /api/webhook.
//
// Description:
//
//	Accepts GitHub and GitLab push and merge webhooks. Verifies the
//	provider signature when a secret is configured, normalizes the
//	payload, and queues the analysis on a background goroutine. The
//	delivery is acknowledged before the analysis runs.
//
// Response:
//
//	202 Accepted: {"status":"accepted"} analysis queued
//	200 OK: {"status":"ignored"} event type not processed
//	400 Bad Request: malformed payload
//	401 Unauthorized: signature verification failed
//	503 Service Unavailable: background queue full
func (h *Handlers) HandleWebhook(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleWebhook")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unable to read request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	source, eventType, err := detectSource(c.Request.Header)
	if err != nil {
		logger.Warn("webhook without provider event header")
		h.svc.metrics.ObserveWebhook("unknown", observability.OutcomeRejected)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Missing provider event header",
			Code:  "UNKNOWN_SOURCE",
		})
		return
	}
	logger = logger.With("source", source, "event_type", eventType)

	if err := verifySignature(h.svc.currentConfig().Webhook, source, c.Request.Header, body); err != nil {
		logger.Warn("webhook signature verification failed")
		h.svc.metrics.ObserveWebhook(source, observability.OutcomeRejected)
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Invalid webhook signature",
			Code:  "INVALID_SIGNATURE",
		})
		return
	}

	event, err := parseEvent(source, eventType, body)
	if err != nil {
		logger.Warn("failed to parse webhook payload", "error", err)
		h.svc.metrics.ObserveWebhook(source, observability.OutcomeRejected)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid webhook payload",
			Code:  "INVALID_PAYLOAD",
		})
		return
	}

	if event.Kind == kindIgnored {
		logger.Info("webhook event ignored", "reason", event.Reason)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "message": event.Reason})
		return
	}

	if !h.svc.schedule(event) {
		logger.Warn("background queue full, dropping event",
			"repository", event.Repo.Name)
		h.svc.metrics.ObserveWebhook(source, observability.OutcomeDropped)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Analysis queue is full, retry later",
			Code:  "QUEUE_FULL",
		})
		return
	}

	logger.Info("webhook event queued",
		"repository", event.Repo.Name, "commits", len(event.Commits))
	h.svc.metrics.ObserveWebhook(source, observability.OutcomeAccepted)
	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Event queued for analysis",
	})
}

// HandleStats handles GET /api/fraud/stats.
//
// Response:
//
//	200 OK: aggregate analysis statistics
//	500 Internal Server Error: store failure
func (h *Handlers) HandleStats(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStats")

	threshold := h.svc.currentConfig().Analysis.AlertThreshold
	stats, err := h.svc.store.Stats(c.Request.Context(), threshold)
	if err != nil {
		logger.Error("failed to compute stats", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to compute statistics",
			Code:  "STORE_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleAlerts handles GET /api/alerts.
//
// Query Parameters:
//
//	limit - maximum number of alerts, default 50
//
// Response:
//
//	200 OK: unresolved alerts, most recent first
func (h *Handlers) HandleAlerts(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAlerts")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		limit = n
	}

	alerts, err := h.svc.store.UnresolvedAlerts(c.Request.Context(), limit)
	if err != nil {
		logger.Error("failed to list alerts", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to list alerts",
			Code:  "STORE_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// HandleResolveAlert handles POST /api/alerts/:id/resolve.
//
// Response:
//
//	200 OK: alert marked resolved
//	404 Not Found: no alert with the given id
func (h *Handlers) HandleResolveAlert(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleResolveAlert")

	alertID := c.Param("id")
	if err := h.svc.store.ResolveAlert(c.Request.Context(), alertID); err != nil {
		if errors.Is(err, badgerstore.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Alert not found",
				Code:  "NOT_FOUND",
			})
			return
		}
		logger.Error("failed to resolve alert", "alert_id", alertID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to resolve alert",
			Code:  "STORE_ERROR",
		})
		return
	}

	logger.Info("alert resolved", "alert_id", alertID)
	c.JSON(http.StatusOK, gin.H{"status": "resolved", "alert_id": alertID})
}

// HandleSimulate handles GET /api/simulate.
//
// Description:
//
//	Emits a synthetic high-risk fraud event for demos and channel
//	testing. A seed query parameter makes the output deterministic.
func (h *Handlers) HandleSimulate(c *gin.Context) {
	var rng *rand.Rand
	if raw := c.Query("seed"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "seed must be an integer",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		rng = rand.New(rand.NewSource(seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	event := gin.H{
		"event_id":   1000 + rng.Intn(9000),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"risk_score": float64(int((0.75+rng.Float64()*0.25)*100)) / 100,
		"message":    "Simulated fraudulent commit detected",
		"activity": gin.H{
			"commit_id":        "sim-" + strconv.Itoa(10000+rng.Intn(90000)),
			"author":           "unknown_user",
			"changes_detected": []string{"config.yaml", "credentials.txt"},
			"flags": []engine.AnomalyFlag{
				engine.FlagSuspiciousFileChange,
				engine.FlagHighEntropyData,
			},
		},
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "fraud_event": event})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": ServiceVersion})
}

// HandleReady handles GET /ready. The service is ready once the store
// answers queries.
func (h *Handlers) HandleReady(c *gin.Context) {
	if _, err := h.svc.store.UnresolvedAlerts(c.Request.Context(), 1); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one,
// echoing it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
