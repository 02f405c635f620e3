package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voicebot/internal/calls"
)

func TestCallsSummary_BusinessIsolationAndCounts(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Put(calls.Call{ProviderCallSID: "CA1", BusinessID: "b1", CallerNumber: "+44700", Status: calls.StatusCompleted,
		DurationSeconds: 125, Category: "booking", Sentiment: "positive", RecordingURL: "https://r/1", CreatedAt: now})
	repo.Put(calls.Call{ProviderCallSID: "CA2", BusinessID: "b1", CallerNumber: "+44700", Status: calls.StatusMissed, CreatedAt: now})
	repo.Put(calls.Call{ProviderCallSID: "CA3", BusinessID: "b1", CallerNumber: "+44800", Status: calls.StatusVoicemail,
		DurationSeconds: 35, Category: "enquiry", Sentiment: "neutral", CreatedAt: now})
	repo.Put(calls.Call{ProviderCallSID: "CA4", BusinessID: "b2", CallerNumber: "+44700", Status: calls.StatusCompleted,
		DurationSeconds: 50, CreatedAt: now})
	repo.Put(calls.Call{ProviderCallSID: "CA5", BusinessID: "b1", Status: calls.StatusCompleted,
		DurationSeconds: 10, CreatedAt: now.Add(-48 * time.Hour)})

	out, err := NewService(repo).CallsSummary(context.Background(), CallsSummaryRequest{
		BusinessID: "b1",
		Range:      TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 || out.CompletedCalls != 1 || out.MissedCalls != 1 || out.VoicemailCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.TotalDurationSeconds != 160 || out.AverageDurationSeconds != 53 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.BilledMinutes != 2.66 {
		t.Fatalf("expected 2.66 billed minutes, got %v", out.BilledMinutes)
	}
	if out.ByCategory["booking"] != 1 || out.BySentiment["neutral"] != 1 {
		t.Fatalf("unexpected breakdowns: %+v %+v", out.ByCategory, out.BySentiment)
	}
	if out.RecordedCalls != 1 || out.UniqueCallers != 2 || out.RepeatCallers != 1 {
		t.Fatalf("unexpected caller stats: %+v", out)
	}
}

func TestCallsSummary_RejectsBadRange(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo())
	now := time.Now()
	cases := []CallsSummaryRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{BusinessID: "b1", Range: TimeRange{From: now, To: now}},
		{BusinessID: "b1", Range: TimeRange{From: now.Add(-400 * 24 * time.Hour), To: now}},
	}
	for _, req := range cases {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}
