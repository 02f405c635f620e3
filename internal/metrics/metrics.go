// Package metrics holds the Prometheus collectors of the call engine. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	WebhookRequests   *prometheus.CounterVec
	Turns             *prometheus.CounterVec
	AIRequests        *prometheus.CounterVec
	AIRequestDuration *prometheus.HistogramVec
	Finalizations     *prometheus.CounterVec
	UsageAlerts       *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry()
// in tests; production uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WebhookRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_webhook_requests_total",
			Help: "Provider webhook requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_turns_total",
			Help: "Dialogue turns by outcome (reply, transfer, closing, reprompt, duplicate)",
		}, []string{"outcome"}),
		AIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_ai_requests_total",
			Help: "AI gateway operations by status (ok, fallback)",
		}, []string{"operation", "status"}),
		AIRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicebot_ai_request_duration_seconds",
			Help:    "AI gateway operation latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		}, []string{"operation"}),
		Finalizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_call_finalizations_total",
			Help: "Calls finalized by terminal status",
		}, []string{"status"}),
		UsageAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_usage_alerts_total",
			Help: "Usage threshold alerts fired",
		}, []string{"threshold"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_events_published_total",
			Help: "Domain events published by type and status",
		}, []string{"type", "status"}),
	}
}

func (m *Metrics) Webhook(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.WebhookRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) Turn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AIRequest(operation string, fallback bool, took time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if fallback {
		status = "fallback"
	}
	m.AIRequests.WithLabelValues(operation, status).Inc()
	m.AIRequestDuration.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Metrics) Finalized(status string) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(status).Inc()
}

func (m *Metrics) UsageAlert(threshold int) {
	if m == nil {
		return
	}
	m.UsageAlerts.WithLabelValues(thresholdLabel(threshold)).Inc()
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, status).Inc()
}

func thresholdLabel(t int) string {
	switch t {
	case 80:
		return "80"
	case 90:
		return "90"
	case 100:
		return "100"
	default:
		return "other"
	}
}
