package reporting

import (
	"context"
	"errors"
	"time"

	"voicebot/internal/calls"
	"voicebot/internal/usage"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// maxRange bounds one report.
const maxRange = 366 * 24 * time.Hour

// Repository lists a business's calls created in [from, to).
// Implementations must filter by business.
type Repository interface {
	ListRange(ctx context.Context, businessID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.BusinessID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.To.Sub(req.Range.From) > maxRange {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListRange(ctx, req.BusinessID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		BusinessID:  req.BusinessID,
		Range:       req.Range,
		ByCategory:  map[string]int{},
		BySentiment: map[string]int{},
	}
	callers := map[string]int{}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusVoicemail:
			out.VoicemailCalls++
		case calls.StatusInProgress:
			out.InProgressCalls++
		}
		// Only answered calls accrue minutes.
		if c.Status == calls.StatusCompleted || c.Status == calls.StatusVoicemail {
			out.BilledMinutes += usage.RoundMinutes(c.DurationSeconds)
		}
		if c.Category != "" {
			out.ByCategory[c.Category]++
		}
		if c.Sentiment != "" {
			out.BySentiment[c.Sentiment]++
		}
		if c.CallerNumber != "" {
			callers[c.CallerNumber]++
		}
	}
	out.UniqueCallers = len(callers)
	for _, n := range callers {
		if n > 1 {
			out.RepeatCallers++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	out.BilledMinutes = usage.RoundTotal(out.BilledMinutes)
	return out, nil
}
