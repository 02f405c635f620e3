package tickets

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// Ticket is a follow-up item derived from an analyzed call. Staff workflow
// mutates it afterwards; this service only creates it.
type Ticket struct {
	ID           string    `json:"id" db:"id"`
	BusinessID   string    `json:"business_id" db:"business_id"`
	CallID       string    `json:"call_id" db:"call_id"`
	Type         string    `json:"type" db:"type"`
	Priority     Priority  `json:"priority" db:"priority"`
	Subject      string    `json:"subject" db:"subject"`
	Description  string    `json:"description" db:"description"`
	CallerName   string    `json:"caller_name,omitempty" db:"caller_name"`
	CallerNumber string    `json:"caller_number" db:"caller_number"`
	Status       Status    `json:"status" db:"status"`
	Notes        string    `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Normalize fills the defaults used when the analysis omits fields.
func (t Ticket) Normalize() Ticket {
	if t.Type == "" {
		t.Type = "enquiry"
	}
	switch t.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		t.Priority = PriorityNormal
	}
	if t.Subject == "" {
		t.Subject = "New ticket"
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	return t
}
