package calls

import "time"

// Call is one phone conversation handled for a business.
//
// Exactly one row exists per ProviderCallSID. Status only moves forward:
// in_progress -> {completed, missed, voicemail}.
type Call struct {
	ID              string    `json:"id" db:"id"`
	ProviderCallSID string    `json:"provider_call_sid" db:"provider_call_sid"`
	BusinessID      string    `json:"business_id" db:"business_id"`
	CallerNumber    string    `json:"caller_number" db:"caller_number"`
	CalledNumber    string    `json:"called_number" db:"called_number"`
	Direction       Direction `json:"direction" db:"direction"`
	Status          Status    `json:"status" db:"status"`

	// DurationSeconds is reported by the provider on the terminal callback.
	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`

	Transcript   string   `json:"transcript,omitempty" db:"transcript"`
	Summary      string   `json:"summary,omitempty" db:"summary"`
	Category     string   `json:"category,omitempty" db:"category"`
	Sentiment    string   `json:"sentiment,omitempty" db:"sentiment"`
	CallerName   string   `json:"caller_name,omitempty" db:"caller_name"`
	CallerIntent string   `json:"caller_intent,omitempty" db:"caller_intent"`
	Resolution   string   `json:"resolution,omitempty" db:"resolution"`
	ActionItems  []string `json:"action_items,omitempty" db:"action_items"`

	ConversationLog []Entry `json:"conversation_log,omitempty" db:"conversation_log"`
	// LastTurn is the highest turn index mirrored into ConversationLog; -1 before the first turn.
	LastTurn int `json:"-" db:"last_turn"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	// FinalizedAt is set exactly once, by whichever terminal callback wins.
	FinalizedAt *time.Time `json:"-" db:"finalized_at"`
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusMissed     Status = "missed"
	StatusVoicemail  Status = "voicemail"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusMissed, StatusVoicemail:
		return true
	default:
		return false
	}
}

// CanTransition enforces the forward-only status graph.
func CanTransition(from, to Status) bool {
	return from == StatusInProgress && to.Terminal()
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Role string

const (
	RoleCaller Role = "Caller"
	RoleAgent  Role = "Agent"
)

// Entry is one line of the conversation log.
type Entry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// HistoryItem summarizes a prior completed call from the same caller.
type HistoryItem struct {
	Date            time.Time `json:"date"`
	Summary         string    `json:"summary"`
	Category        string    `json:"category"`
	Sentiment       string    `json:"sentiment"`
	CallerName      string    `json:"caller_name,omitempty"`
	DurationSeconds int       `json:"duration"`
}

// Analysis is the structured enrichment written after a completed call.
type Analysis struct {
	Transcript   string
	Summary      string
	Category     string
	Sentiment    string
	CallerName   string
	CallerIntent string
	Resolution   string
	ActionItems  []string
}

// ProviderTerminalStatus maps provider call statuses to the final call status.
// ok is false for non-terminal provider statuses (ringing, in-progress...).
func ProviderTerminalStatus(providerStatus string) (Status, bool) {
	switch providerStatus {
	case "completed":
		return StatusCompleted, true
	case "busy", "no-answer", "canceled", "failed":
		return StatusMissed, true
	default:
		return "", false
	}
}
