package ai

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"voicebot/internal/business"
	"voicebot/internal/calls"
)

func TestTurnPrompt_ReturningCallerFraming(t *testing.T) {
	tc := TurnContext{
		CallerNumber: "+447700900123",
		History: []calls.HistoryItem{
			{Date: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC), Summary: "Asked about prices.", Category: "enquiry", Sentiment: "neutral", CallerName: "Jane"},
			{Date: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC), Summary: "Complained about a late visit.", Category: "complaint", Sentiment: "negative"},
		},
		Utterance: "Hi, it's me again",
	}
	text := TurnPrompt(tc).Text

	for _, want := range []string{
		"CALLER PHONE NUMBER: +447700900123",
		"RETURNING CALLER — Name: Jane",
		"- 2025-03-02: Asked about prices. (Category: enquiry, Sentiment: neutral)",
		"- 2025-02-01: Complained about a late visit. (Category: complaint, Sentiment: negative)",
		"This is a RETURNING caller named Jane",
		`CALLER JUST SAID: "Hi, it's me again"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in prompt:\n%s", want, text)
		}
	}
	if strings.Contains(text, "ask the caller for their name") {
		t.Fatalf("known caller must not be asked for a name")
	}
}

func TestTurnPrompt_ReturningCallerNameUnknown(t *testing.T) {
	tc := TurnContext{History: []calls.HistoryItem{{Summary: "x"}}}
	text := TurnPrompt(tc).Text
	if !strings.Contains(text, "RETURNING CALLER (name unknown)") {
		t.Fatalf("expected unknown-name framing:\n%s", text)
	}
	if !strings.Contains(text, "politely ask the caller for their name") {
		t.Fatalf("expected name rule")
	}
}

func TestTurnPrompt_NewCaller(t *testing.T) {
	p := TurnPrompt(TurnContext{})
	if !strings.Contains(p.Text, "No previous calls from this number. This is a new caller.") {
		t.Fatalf("expected new caller framing")
	}
	if !strings.Contains(p.Text, "CALLER PHONE NUMBER: unknown") {
		t.Fatalf("expected unknown number")
	}
	if p.System != defaultPersonality {
		t.Fatalf("expected default personality, got %q", p.System)
	}
}

func TestTurnPrompt_WindowsAndCaps(t *testing.T) {
	var log []calls.Entry
	for i := 0; i < 14; i++ {
		log = append(log, calls.Entry{Role: calls.RoleCaller, Text: fmt.Sprintf("line-%02d", i)})
	}
	var docs []business.KnowledgeDoc
	for i := 0; i < 7; i++ {
		docs = append(docs, business.KnowledgeDoc{Title: fmt.Sprintf("doc-%d", i), Content: "c"})
	}
	tc := TurnContext{
		Conversation:   log,
		KnowledgeBase:  docs,
		FAQ:            []business.FAQ{{Question: "Parking?", Answer: "Yes, free."}},
		RestrictedInfo: "staff home addresses",
	}
	text := TurnPrompt(tc).Text

	if strings.Contains(text, "line-03") || !strings.Contains(text, "Caller: line-04") || !strings.Contains(text, "line-13") {
		t.Fatalf("expected last 10 turns only:\n%s", text)
	}
	if !strings.Contains(text, "--- doc-4: c") || strings.Contains(text, "doc-5") {
		t.Fatalf("expected knowledge base capped at 5:\n%s", text)
	}
	if !strings.Contains(text, "Q: Parking?\nA: Yes, free.") {
		t.Fatalf("expected faq block")
	}
	if !strings.Contains(text, "Restricted info (NEVER share): staff home addresses") {
		t.Fatalf("expected restricted info line")
	}
	if !strings.HasSuffix(text, "RESPOND AS THE RECEPTIONIST:") {
		t.Fatalf("expected closing instruction")
	}
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript([]calls.Entry{{Role: calls.RoleAgent, Text: "Hello"}, {Role: calls.RoleCaller, Text: "Hi"}})
	if got != "Agent: Hello\nCaller: Hi" {
		t.Fatalf("unexpected transcript %q", got)
	}
}
