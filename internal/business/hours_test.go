package business

import (
	"testing"
	"time"
)

func at(day time.Weekday, hh, mm int) time.Time {
	// 2024-01-01 is a Monday.
	base := time.Date(2024, 1, 1, hh, mm, 0, 0, time.UTC)
	return base.AddDate(0, 0, (int(day)+6)%7)
}

func TestSchedule_EmptyIsAlwaysOpen(t *testing.T) {
	s, err := ParseSchedule(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !s.IsOpen(at(time.Sunday, 3, 0)) {
		t.Fatalf("empty schedule must be open")
	}
}

func TestSchedule_Window(t *testing.T) {
	s, err := ParseSchedule([]byte(`{"Monday":{"open":"09:00","close":"17:30"},"sunday":{"closed":true},"tuesday":{}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"monday before open", at(time.Monday, 8, 59), false},
		{"monday at open", at(time.Monday, 9, 0), true},
		{"monday at close", at(time.Monday, 17, 30), true},
		{"monday after close", at(time.Monday, 17, 31), false},
		{"tuesday defaults", at(time.Tuesday, 12, 0), true},
		{"tuesday default close", at(time.Tuesday, 17, 1), false},
		{"sunday closed", at(time.Sunday, 12, 0), false},
		{"wednesday unlisted", at(time.Wednesday, 12, 0), false},
	}
	for _, tc := range cases {
		if got := s.IsOpen(tc.now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSchedule_CloseIsExactToTheSecond(t *testing.T) {
	s, err := ParseSchedule([]byte(`{"monday":{"open":"09:00","close":"17:00"},"friday":{"open":"08:30:15","close":"12:00:30"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	at17 := at(time.Monday, 17, 0)

	if !s.IsOpen(at17) {
		t.Fatalf("17:00:00 must be open")
	}
	if s.IsOpen(at17.Add(time.Second)) {
		t.Fatalf("17:00:01 must be closed")
	}
	if s.IsOpen(at17.Add(59 * time.Second)) {
		t.Fatalf("17:00:59 must be closed")
	}
	if s.IsOpen(at(time.Friday, 8, 30).Add(14 * time.Second)) {
		t.Fatalf("08:30:14 must be before a seconds-precision open")
	}
	if !s.IsOpen(at(time.Friday, 12, 0).Add(30 * time.Second)) {
		t.Fatalf("12:00:30 must be open")
	}
}

func TestParseSchedule_RejectsBadClock(t *testing.T) {
	if _, err := ParseSchedule([]byte(`{"monday":{"open":"9am"}}`)); err == nil {
		t.Fatalf("expected error for malformed clock")
	}
	if _, err := ParseSchedule([]byte(`[1,2]`)); err == nil {
		t.Fatalf("expected error for non-object")
	}
}

func TestSchedule_String(t *testing.T) {
	s := Schedule{"sunday": {Closed: true}, "monday": {Open: "08:00", Close: "16:00"}}
	if got := s.String(); got != "monday 08:00-16:00; sunday closed" {
		t.Fatalf("unexpected rendering %q", got)
	}
	if (Schedule{}).String() != "Not specified" {
		t.Fatalf("expected placeholder for empty schedule")
	}
}

func TestResolved_EffectiveValues(t *testing.T) {
	r := Resolved{Business: Business{Name: "Acme", Agent: AgentConfig{Greeting: "Hi from Acme", Personality: "biz"}}}
	if r.EffectiveGreeting() != "Hi from Acme" || r.EffectivePersonality() != "biz" {
		t.Fatalf("expected business-level values")
	}
	r.Number = NumberOverride{Greeting: "Sales line", Personality: "sales"}
	if r.EffectiveGreeting() != "Sales line" || r.EffectivePersonality() != "sales" {
		t.Fatalf("expected number-level overrides")
	}
	r = Resolved{Business: Business{Name: "Acme"}}
	if r.EffectiveGreeting() != "Hello, thank you for calling Acme. How can I help you?" {
		t.Fatalf("unexpected fallback greeting %q", r.EffectiveGreeting())
	}
}

func TestTierMinutes(t *testing.T) {
	if TierStarter.MonthlyMinutes() != 200 || TierGrowth.MonthlyMinutes() != 600 || TierEnterprise.MonthlyMinutes() != 2000 {
		t.Fatalf("unexpected tier limits")
	}
	if Tier("legacy").MonthlyMinutes() != 200 {
		t.Fatalf("unknown tier must fall back to starter")
	}
}
