package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voicebot/internal/audit"
	"voicebot/internal/config"
	"voicebot/internal/httpapi"
	"voicebot/internal/metrics"
	"voicebot/internal/reporting"
	"voicebot/internal/telephony"
	"voicebot/pkg/utils"
)

type routeDeps struct {
	cfg    config.Config
	db     *sql.DB
	authMW gin.HandlerFunc

	calling    httpapi.CallEngine
	interviews interface {
		httpapi.InterviewEngine
		httpapi.InterviewStarter
	}
	recorder httpapi.StatusRecorder
	metrics  *metrics.Metrics

	businesses  httpapi.BusinessReader
	usage       httpapi.UsageReader
	activeCalls httpapi.LiveCounter
	calls       interface {
		httpapi.LiveLister
		reporting.Repository
	}
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks.
	hooks := r.Group("/webhook")
	if d.cfg.Twilio.ValidateSignature {
		hooks.Use(telephony.SignatureMiddleware(d.cfg.Twilio.AuthToken, d.cfg.App.BaseURL))
	}
	httpapi.Webhooks{
		Calls:      d.calling,
		Interviews: d.interviews,
		Recorder:   d.recorder,
		Metrics:    d.metrics,
	}.Register(hooks)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW)
	httpapi.Handlers{
		Businesses:  d.businesses,
		Usage:       d.usage,
		ActiveCalls: d.activeCalls,
		Calls:       d.calls,
		Reports:     reporting.NewService(d.calls),
		Onboarding:  d.interviews,
		Audit:       audit.NewService(audit.NewPostgresRepo(d.db)),
	}.Register(v1)
}
