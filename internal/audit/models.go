package audit

import "time"

// Event is an immutable record of an operator action taken through the
// business API.
//
// Invariants:
// - Events are never updated or deleted.
// - business_id is required; every action is scoped to one tenant.
// - Recording is best-effort; an audit failure never fails the action.
type Event struct {
	ID         string `json:"id" db:"id"`
	BusinessID string `json:"business_id" db:"business_id"`

	Type EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// ActorRole is recorded so support access to a tenant stays visible.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers, depending on Type.
	OnboardingID string `json:"onboarding_id,omitempty" db:"onboarding_id"`
	CallSid      string `json:"call_sid,omitempty" db:"call_sid"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeOnboardingStarted EventType = "onboarding_started"
	// EventTypeSupportAccess marks a read by platform support.
	EventTypeSupportAccess EventType = "support_access"
)
