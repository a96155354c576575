// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fraudshield

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/fraudshieldai/fraudshield/services/fraudshield/config"
	"github.com/fraudshieldai/fraudshield/services/fraudshield/telemetry"
)

// RegisterRoutes wires all endpoints onto the router.
func RegisterRoutes(router *gin.Engine, h *Handlers, webhookCfg config.WebhookConfig) {
	router.Use(otelgin.Middleware("fraudshield-service"))

	router.GET("/health", h.HandleHealth)
	router.GET("/ready", h.HandleReady)
	router.GET("/metrics", metricsHandler())

	api := router.Group("/api")
	{
		api.POST("/webhook", rateLimit(webhookCfg), h.HandleWebhook)
		api.GET("/simulate", h.HandleSimulate)
		api.GET("/fraud/stats", h.HandleStats)

		alerts := api.Group("/alerts")
		{
			alerts.GET("", h.HandleAlerts)
			alerts.POST("/:id/resolve", h.HandleResolveAlert)
		}
	}
}

// rateLimit guards the webhook endpoint against delivery storms. The
// limiter is shared across all senders; provider retry backoff handles
// the 429s.
func rateLimit(cfg config.WebhookConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Webhook rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// metricsHandler prefers the OTel-aware handler when the prometheus
// exporter is active, falling back to the plain promhttp handler.
func metricsHandler() gin.HandlerFunc {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		handler = promhttp.Handler()
	}
	return gin.WrapH(handler)
}
