package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest is scoped to one business; BusinessID is required.
type CallsSummaryRequest struct {
	BusinessID string    `json:"business_id"`
	Range      TimeRange `json:"range"`
}

type CallsSummary struct {
	BusinessID string    `json:"business_id"`
	Range      TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	MissedCalls     int `json:"missed_calls"`
	VoicemailCalls  int `json:"voicemail_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	// Keyed by the analysis labels; unanalyzed calls are not counted.
	ByCategory  map[string]int `json:"by_category"`
	BySentiment map[string]int `json:"by_sentiment"`

	TotalDurationSeconds   int     `json:"total_duration_seconds"`
	AverageDurationSeconds int     `json:"average_duration_seconds"`
	BilledMinutes          float64 `json:"billed_minutes"`

	RecordedCalls int `json:"recorded_calls"`
	UniqueCallers int `json:"unique_callers"`
	RepeatCallers int `json:"repeat_callers"`
}
