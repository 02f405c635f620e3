package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Twilio posts application/x-www-form-urlencoded bodies. Engine-specific
// parameters (business_id, call_sid, turn...) travel in the action URL query.
// Parsers here only translate; they make no decisions.

// InboundCall is the first webhook of a call.
type InboundCall struct {
	CallSid string
	From    string
	// Called is the dialed number; Twilio sends it as Called, with To as a
	// fallback on older payloads.
	Called    string
	Direction string
}

func ParseInboundCall(r *http.Request) (InboundCall, error) {
	if err := r.ParseForm(); err != nil {
		return InboundCall{}, err
	}
	f := InboundCall{
		CallSid:   strings.TrimSpace(r.PostFormValue("CallSid")),
		From:      normalizePhone(r.PostFormValue("From")),
		Called:    normalizePhone(r.PostFormValue("Called")),
		Direction: r.PostFormValue("Direction"),
	}
	if f.Called == "" {
		f.Called = normalizePhone(r.PostFormValue("To"))
	}
	if f.CallSid == "" {
		return InboundCall{}, fmt.Errorf("%w: CallSid", ErrMissingField)
	}
	return f, nil
}

// SpeechEvent is a gather result for one turn.
type SpeechEvent struct {
	CallSid    string
	BusinessID string
	Turn       int
	Speech     string
	Confidence float64
	// Reprompt marks a gather issued after an empty capture at the same turn.
	Reprompt bool
}

func ParseSpeechEvent(r *http.Request) (SpeechEvent, error) {
	if err := r.ParseForm(); err != nil {
		return SpeechEvent{}, err
	}
	q := r.URL.Query()
	ev := SpeechEvent{
		CallSid:    strings.TrimSpace(q.Get("call_sid")),
		BusinessID: strings.TrimSpace(q.Get("business_id")),
		Speech:     strings.TrimSpace(r.FormValue("SpeechResult")),
		Reprompt:   q.Get("reprompt") == "1",
	}
	if ev.CallSid == "" {
		ev.CallSid = strings.TrimSpace(r.PostFormValue("CallSid"))
	}
	if ev.CallSid == "" {
		return SpeechEvent{}, fmt.Errorf("%w: call_sid", ErrMissingField)
	}
	turn, err := optionalInt(q.Get("turn"))
	if err != nil || turn < 0 {
		return SpeechEvent{}, fmt.Errorf("telephony: invalid turn %q", q.Get("turn"))
	}
	ev.Turn = turn
	if c := r.PostFormValue("Confidence"); c != "" {
		ev.Confidence, _ = strconv.ParseFloat(c, 64)
	}
	return ev, nil
}

// TransferRequest is the redirect target after a greeting got no input.
type TransferRequest struct {
	CallSid    string
	BusinessID string
}

func ParseTransferRequest(r *http.Request) (TransferRequest, error) {
	if err := r.ParseForm(); err != nil {
		return TransferRequest{}, err
	}
	q := r.URL.Query()
	t := TransferRequest{
		CallSid:    strings.TrimSpace(q.Get("call_sid")),
		BusinessID: strings.TrimSpace(q.Get("business_id")),
	}
	if t.CallSid == "" {
		t.CallSid = strings.TrimSpace(r.PostFormValue("CallSid"))
	}
	return t, nil
}

// StatusEvent is a call status callback.
type StatusEvent struct {
	CallSid         string
	CallStatus      string
	DurationSeconds int
}

func ParseStatusEvent(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, err
	}
	ev := StatusEvent{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if ev.CallSid == "" {
		return StatusEvent{}, fmt.Errorf("%w: CallSid", ErrMissingField)
	}
	d, err := optionalInt(r.PostFormValue("CallDuration"))
	if err != nil {
		return StatusEvent{}, fmt.Errorf("telephony: invalid CallDuration: %w", err)
	}
	ev.DurationSeconds = d
	return ev, nil
}

// RecordingEvent is posted when a voicemail or call recording finishes.
type RecordingEvent struct {
	CallSid         string
	RecordingSid    string
	RecordingURL    string
	RecordingStatus string
	DurationSeconds int
}

func ParseRecordingEvent(r *http.Request) (RecordingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingEvent{}, err
	}
	ev := RecordingEvent{
		CallSid:         strings.TrimSpace(r.PostFormValue("CallSid")),
		RecordingSid:    r.PostFormValue("RecordingSid"),
		RecordingURL:    strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		RecordingStatus: r.PostFormValue("RecordingStatus"),
	}
	if ev.CallSid == "" {
		return RecordingEvent{}, fmt.Errorf("%w: CallSid", ErrMissingField)
	}
	ev.DurationSeconds, _ = optionalInt(r.PostFormValue("RecordingDuration"))
	return ev, nil
}

// OnboardingEvent covers every onboarding interview webhook.
type OnboardingEvent struct {
	BusinessID  string
	InterviewID string
	Question    int
	Speech      string
	CallSid     string
	CallStatus  string
}

func ParseOnboardingEvent(r *http.Request) (OnboardingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return OnboardingEvent{}, err
	}
	q := r.URL.Query()
	ev := OnboardingEvent{
		BusinessID:  strings.TrimSpace(q.Get("business_id")),
		InterviewID: strings.TrimSpace(q.Get("onboarding_id")),
		Speech:      strings.TrimSpace(r.FormValue("SpeechResult")),
		CallSid:     strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus:  strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if ev.InterviewID == "" {
		return OnboardingEvent{}, fmt.Errorf("%w: onboarding_id", ErrMissingField)
	}
	n, err := optionalInt(q.Get("q"))
	if err != nil || n < 0 {
		return OnboardingEvent{}, fmt.Errorf("telephony: invalid question index %q", q.Get("q"))
	}
	ev.Question = n
	return ev, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

func optionalInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
