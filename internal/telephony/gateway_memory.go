package telephony

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway records every Gateway call instead of reaching a provider.
type MemoryGateway struct {
	mu sync.Mutex

	Calls            []OutboundCall
	StatusCallbacks  map[string]string
	RecordingsStarts []string
	SMS              []SMS

	// RecordingURLs and Audio answer LatestRecordingURL and FetchRecording.
	RecordingURLs map[string]string
	Audio         map[string]Recording

	// Err, when set, fails every call.
	Err     error
	nextSid int
}

type SMS struct {
	To   string
	Body string
}

var _ Gateway = (*MemoryGateway)(nil)

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		StatusCallbacks: map[string]string{},
		RecordingURLs:   map[string]string{},
		Audio:           map[string]Recording{},
	}
}

func (g *MemoryGateway) InitiateCall(_ context.Context, req OutboundCall) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	g.nextSid++
	g.Calls = append(g.Calls, req)
	return fmt.Sprintf("CAOUT%04d", g.nextSid), nil
}

func (g *MemoryGateway) RegisterStatusCallback(_ context.Context, callSid, url string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.StatusCallbacks[callSid] = url
	return nil
}

func (g *MemoryGateway) StartRecording(_ context.Context, callSid, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.RecordingsStarts = append(g.RecordingsStarts, callSid)
	return nil
}

func (g *MemoryGateway) LatestRecordingURL(_ context.Context, callSid string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	return g.RecordingURLs[callSid], nil
}

func (g *MemoryGateway) FetchRecording(_ context.Context, url string) (Recording, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return Recording{}, g.Err
	}
	rec, ok := g.Audio[url]
	if !ok {
		return Recording{}, fmt.Errorf("telephony: no recording at %s", url)
	}
	return rec, nil
}

func (g *MemoryGateway) SendSMS(_ context.Context, to, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.SMS = append(g.SMS, SMS{To: to, Body: body})
	return nil
}

// SentSMS returns a copy of the messages sent so far.
func (g *MemoryGateway) SentSMS() []SMS {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SMS(nil), g.SMS...)
}
