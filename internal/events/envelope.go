// Package events publishes domain events for downstream consumers (billing,
// notifications, dashboards). Publishing is best effort: the call path never
// waits on or fails because of the broker.
package events

import (
	"time"

	"github.com/google/uuid"
)

const Producer = "voicebot"

// Event types double as routing keys on the topic exchange.
const (
	TypeCallCompleted         = "call.completed"
	TypeTicketCreated         = "ticket.created"
	TypeUsageThresholdCrossed = "usage.threshold_crossed"
	TypeOnboardingCompleted   = "onboarding.completed"
)

type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope stamps a fresh event id. correlationID is usually the provider
// call sid or the interview id.
func NewEnvelope(eventType, correlationID string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			Type:          eventType,
			Time:          time.Now().UTC(),
			CorrelationID: correlationID,
			Producer:      Producer,
		},
		Data: data,
	}
}

type CallCompleted struct {
	CallID          string  `json:"call_id"`
	BusinessID      string  `json:"business_id"`
	CallSid         string  `json:"call_sid"`
	Status          string  `json:"status"`
	DurationSeconds int     `json:"duration_seconds"`
	Minutes         float64 `json:"minutes"`
	Category        string  `json:"category,omitempty"`
	Sentiment       string  `json:"sentiment,omitempty"`
	Analyzed        bool    `json:"analyzed"`
}

type TicketCreated struct {
	TicketID   string `json:"ticket_id"`
	BusinessID string `json:"business_id"`
	CallID     string `json:"call_id"`
	Priority   string `json:"priority"`
	Subject    string `json:"subject"`
}

type UsageThresholdCrossed struct {
	BusinessID  string  `json:"business_id"`
	Month       string  `json:"month"`
	Threshold   int     `json:"threshold"`
	MinutesUsed float64 `json:"minutes_used"`
	Limit       int     `json:"minutes_limit"`
}

type OnboardingCompleted struct {
	InterviewID string `json:"onboarding_id"`
	BusinessID  string `json:"business_id"`
	Answered    int    `json:"answered"`
	Fallback    bool   `json:"fallback_config"`
}
