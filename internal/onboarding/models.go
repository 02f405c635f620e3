package onboarding

import (
	"strconv"
	"time"

	"voicebot/internal/ai"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Interview is one outbound setup call. Questions are fixed at creation;
// answers accumulate one per field and are never overwritten.
type Interview struct {
	ID              string            `json:"id" db:"id"`
	BusinessID      string            `json:"business_id" db:"business_id"`
	ProviderCallSID string            `json:"provider_call_sid,omitempty" db:"provider_call_sid"`
	Status          Status            `json:"status" db:"status"`
	Questions       []ai.Question     `json:"questions" db:"questions_asked"`
	Answers         map[string]string `json:"answers" db:"extracted_data"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// FieldFor is the answer key of question i. Questions without a field name
// are keyed by position.
func FieldFor(questions []ai.Question, i int) string {
	if i < 0 || i >= len(questions) {
		return ""
	}
	if f := questions[i].FieldName; f != "" {
		return f
	}
	return "question_" + strconv.Itoa(i)
}
