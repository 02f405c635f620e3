package telephony

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured = errors.New("telephony: provider not configured")
	ErrMissingField  = errors.New("telephony: missing required field")
)

// Gateway is the provider's call-control surface used outside webhook
// responses. No business logic belongs behind it; implementations only
// translate to the provider's REST API.
type Gateway interface {
	// InitiateCall places an outbound call and returns the provider call sid.
	InitiateCall(ctx context.Context, req OutboundCall) (string, error)
	// RegisterStatusCallback asks the provider to notify url when the live
	// call reaches a terminal status.
	RegisterStatusCallback(ctx context.Context, callSid, url string) error
	StartRecording(ctx context.Context, callSid, callbackURL string) error
	// LatestRecordingURL returns "" when the call has no recording.
	LatestRecordingURL(ctx context.Context, callSid string) (string, error)
	// FetchRecording downloads recording audio for analysis.
	FetchRecording(ctx context.Context, url string) (Recording, error)
	SendSMS(ctx context.Context, to, body string) error
}

// OutboundCall describes a call the engine places itself (onboarding).
type OutboundCall struct {
	To             string
	From           string
	URL            string
	StatusCallback string
	Record         bool
}

// Recording is downloaded call audio.
type Recording struct {
	Data     []byte
	MIMEType string
}

// TerminalCallbackEvents are the status events a live call is registered for.
var TerminalCallbackEvents = []string{"completed", "busy", "no-answer", "canceled", "failed"}
