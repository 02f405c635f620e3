package business

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stored clocks are "15:04"; "15:04:05" is accepted too.
var clockLayouts = []string{"15:04", "15:04:05"}

// DayHours is one weekday's opening window. Missing open/close default to
// 09:00/17:00.
type DayHours struct {
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
	Closed bool   `json:"closed,omitempty"`
}

// Schedule is keyed by lowercase English weekday name ("monday"...).
// An empty schedule means the business never closes.
type Schedule map[string]DayHours

// ParseSchedule decodes the stored business_hours JSON. Empty input yields an
// empty schedule.
func ParseSchedule(raw []byte) (Schedule, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == "{}" {
		return Schedule{}, nil
	}
	var out Schedule
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("business: invalid business_hours: %w", err)
	}
	normalized := make(Schedule, len(out))
	for day, h := range out {
		day = strings.ToLower(strings.TrimSpace(day))
		if _, err := h.window(); err != nil {
			return nil, fmt.Errorf("business: %s: %w", day, err)
		}
		normalized[day] = h
	}
	return normalized, nil
}

type window struct{ open, close time.Duration }

func (h DayHours) window() (window, error) {
	open, err := clockOffset(h.Open, "09:00")
	if err != nil {
		return window{}, err
	}
	closeAt, err := clockOffset(h.Close, "17:00")
	if err != nil {
		return window{}, err
	}
	return window{open: open, close: closeAt}, nil
}

func clockOffset(v, def string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		v = def
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return clockOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", v)
}

func clockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

// IsOpen reports whether now falls inside today's window, inclusive at both
// ends to the second: 17:00:00 is open against a 17:00 close, 17:00:01 is not.
// Days absent from a non-empty schedule are closed.
func (s Schedule) IsOpen(now time.Time) bool {
	if len(s) == 0 {
		return true
	}
	today, ok := s[strings.ToLower(now.Weekday().String())]
	if !ok || today.Closed {
		return false
	}
	w, err := today.window()
	if err != nil {
		return true
	}
	offset := clockOf(now)
	return offset >= w.open && offset <= w.close
}

var weekdayOrder = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// String renders the schedule for prompts, e.g. "monday 09:00-17:00; sunday closed".
func (s Schedule) String() string {
	if len(s) == 0 {
		return "Not specified"
	}
	parts := make([]string, 0, len(s))
	seen := map[string]bool{}
	for _, day := range weekdayOrder {
		h, ok := s[day]
		if !ok {
			continue
		}
		seen[day] = true
		parts = append(parts, h.describe(day))
	}
	var extra []string
	for day := range s {
		if !seen[day] {
			extra = append(extra, day)
		}
	}
	sort.Strings(extra)
	for _, day := range extra {
		parts = append(parts, s[day].describe(day))
	}
	return strings.Join(parts, "; ")
}

func (h DayHours) describe(day string) string {
	if h.Closed {
		return day + " closed"
	}
	open, closeAt := h.Open, h.Close
	if open == "" {
		open = "09:00"
	}
	if closeAt == "" {
		closeAt = "17:00"
	}
	return fmt.Sprintf("%s %s-%s", day, open, closeAt)
}
