package business

import (
	"fmt"
	"strings"
)

type Tier string

const (
	TierStarter    Tier = "starter"
	TierGrowth     Tier = "growth"
	TierEnterprise Tier = "enterprise"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusOnboarding     Status = "onboarding"
	StatusReadyForReview Status = "ready_for_review"
	StatusActive         Status = "active"
)

// Business is the tenant that owns phone numbers and an agent configuration.
type Business struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	Type       string `json:"business_type" db:"business_type"`
	Tier       Tier   `json:"tier" db:"tier"`
	Status     Status `json:"status" db:"status"`
	OwnerPhone string `json:"owner_phone,omitempty" db:"owner_phone"`

	Agent AgentConfig `json:"agent"`
}

// AgentConfig is the behavior contract the dialogue engine reads. It is owned
// by the business-settings side; this service only reads it, except for the
// onboarding synthesis which overwrites it wholesale.
type AgentConfig struct {
	Greeting            string         `json:"greeting"`
	Personality         string         `json:"agent_personality"`
	AfterHoursMessage   string         `json:"after_hours_message"`
	TransferNumber      string         `json:"transfer_number"`
	RestrictedInfo      string         `json:"restricted_info"`
	Services            string         `json:"services"`
	SpecialInstructions string         `json:"special_instructions"`
	FAQ                 []FAQ          `json:"faq"`
	Hours               Schedule       `json:"business_hours,omitempty"`
	KnowledgeBase       []KnowledgeDoc `json:"-"`
}

type FAQ struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
}

type KnowledgeDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NumberOverride is the per-phone-number greeting/personality.
type NumberOverride struct {
	PhoneNumberID string
	Number        string
	Label         string
	Greeting      string
	Personality   string
}

// Resolved is a business as seen through one of its phone numbers.
type Resolved struct {
	Business
	Number NumberOverride
}

// EffectiveGreeting prefers the number override over the business greeting and
// falls back to a generic line.
func (r Resolved) EffectiveGreeting() string {
	if g := strings.TrimSpace(r.Number.Greeting); g != "" {
		return g
	}
	if g := strings.TrimSpace(r.Agent.Greeting); g != "" {
		return g
	}
	return fmt.Sprintf("Hello, thank you for calling %s. How can I help you?", r.Name)
}

// EffectivePersonality prefers the number override; empty means "use the
// model-side default".
func (r Resolved) EffectivePersonality() string {
	if p := strings.TrimSpace(r.Number.Personality); p != "" {
		return p
	}
	return strings.TrimSpace(r.Agent.Personality)
}

// AfterHoursLine is what callers hear outside business hours.
func (b Business) AfterHoursLine() string {
	if m := strings.TrimSpace(b.Agent.AfterHoursMessage); m != "" {
		return m
	}
	return fmt.Sprintf("Thank you for calling %s. We are currently closed.", b.Name)
}

// MonthlyMinutes returns the included minutes for a tier; unknown tiers get
// the starter allowance.
func (t Tier) MonthlyMinutes() int {
	switch t {
	case TierGrowth:
		return 600
	case TierEnterprise:
		return 2000
	default:
		return 200
	}
}
