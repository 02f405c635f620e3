// Package ai is the gateway to the generative backend. Callers never see raw
// provider errors: every operation returns a result carrying either the model
// output or a documented fallback.
package ai

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrAudioUnsupported = errors.New("ai: model does not accept audio")
	ErrEmptyResponse    = errors.New("ai: empty model response")
)

// Audio is inline recording data sent alongside the text prompt.
type Audio struct {
	Data     []byte
	MIMEType string
}

// Prompt is one single-shot generation request.
type Prompt struct {
	// System is passed on the model's instruction channel, never mixed into Text.
	System      string
	Text        string
	Audio       *Audio
	JSON        bool
	Temperature float32
	MaxTokens   int
}

// Model is a black-box completion provider.
type Model interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// stripFences removes a ```json ... ``` wrapper some models add despite a
// JSON response type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if j := strings.LastIndex(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}
