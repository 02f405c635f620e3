package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"voicebot/internal/business"
	"voicebot/internal/calls"
)

const (
	conversationWindow = 10
	knowledgeBaseCap   = 5

	defaultPersonality = "You are a friendly, professional receptionist."
	analysisSystemFmt  = "Analyzing calls for %s (%s). Return valid JSON only."
)

// TurnContext is everything the model sees for one live-call turn.
type TurnContext struct {
	CallerNumber string
	History      []calls.HistoryItem
	Conversation []calls.Entry
	Utterance    string

	FAQ           []business.FAQ
	KnowledgeBase []business.KnowledgeDoc

	Services            string
	Hours               string
	TransferNumber      string
	RestrictedInfo      string
	SpecialInstructions string

	// Personality is sent as the system instruction.
	Personality string
}

// KnownCallerName is the first caller name found in history, newest first.
func (tc TurnContext) KnownCallerName() string {
	for _, h := range tc.History {
		if n := strings.TrimSpace(h.CallerName); n != "" {
			return n
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// historyBlock renders the returning/new caller framing.
func (tc TurnContext) historyBlock() string {
	if len(tc.History) == 0 {
		return "No previous calls from this number. This is a new caller."
	}
	var b strings.Builder
	if name := tc.KnownCallerName(); name != "" {
		fmt.Fprintf(&b, "RETURNING CALLER — Name: %s\nPrevious calls from this caller:\n", name)
	} else {
		b.WriteString("RETURNING CALLER (name unknown) — Previous calls from this caller:\n")
	}
	for _, h := range tc.History {
		fmt.Fprintf(&b, "- %s: %s (Category: %s, Sentiment: %s)\n",
			h.Date.Format("2006-01-02"),
			orDefault(h.Summary, "No summary"),
			orDefault(h.Category, "unknown"),
			orDefault(h.Sentiment, "unknown"),
		)
	}
	return b.String()
}

func (tc TurnContext) conversationBlock() string {
	log := tc.Conversation
	if len(log) > conversationWindow {
		log = log[len(log)-conversationWindow:]
	}
	var b strings.Builder
	for _, e := range log {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Text)
	}
	return b.String()
}

func (tc TurnContext) knowledgeBlock() string {
	var b strings.Builder
	for _, f := range tc.FAQ {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", f.Question, f.Answer)
	}
	b.WriteString("\n")
	docs := tc.KnowledgeBase
	if len(docs) > knowledgeBaseCap {
		docs = docs[:knowledgeBaseCap]
	}
	for _, d := range docs {
		fmt.Fprintf(&b, "--- %s: %s\n", d.Title, d.Content)
	}
	return b.String()
}

func (tc TurnContext) nameRule() string {
	if name := tc.KnownCallerName(); name != "" {
		return fmt.Sprintf("- IMPORTANT: This is a RETURNING caller named %s. Greet them by name. Do NOT ask for their name — you already know it.", name)
	}
	return "- If this is the start of the conversation (turn 0 or 1), politely ask the caller for their name early on."
}

// TurnPrompt renders the turn request. The restricted information is named so
// the model can avoid it; it is never part of the system instruction.
func TurnPrompt(tc TurnContext) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "CALLER PHONE NUMBER: %s\n\n", orDefault(tc.CallerNumber, "unknown"))
	fmt.Fprintf(&b, "CALLER HISTORY:\n%s\n\n", tc.historyBlock())
	fmt.Fprintf(&b, "CURRENT CONVERSATION:\n%s\n\n", tc.conversationBlock())
	fmt.Fprintf(&b, "CALLER JUST SAID: \"%s\"\n\n", tc.Utterance)
	fmt.Fprintf(&b, "KNOWLEDGE BASE:\n%s\n", tc.knowledgeBlock())
	b.WriteString("BUSINESS INFO:\n")
	fmt.Fprintf(&b, "Services: %s\n", orDefault(tc.Services, "Not specified"))
	fmt.Fprintf(&b, "Hours: %s\n", orDefault(tc.Hours, "Not specified"))
	fmt.Fprintf(&b, "Transfer number: %s\n", orDefault(tc.TransferNumber, "None"))
	fmt.Fprintf(&b, "Restricted info (NEVER share): %s\n", orDefault(tc.RestrictedInfo, "None"))
	fmt.Fprintf(&b, "Special instructions: %s\n\n", orDefault(tc.SpecialInstructions, "None"))
	b.WriteString("RULES:\n")
	b.WriteString(tc.nameRule() + "\n")
	b.WriteString(`- NEVER repeat the greeting. If the conversation already shows you greeted, move forward — do NOT say hello/how are you again.
- If this is a RETURNING caller, acknowledge it naturally. Reference their previous calls if relevant.
- Respond in 1-3 sentences. Be warm, helpful, concise.
- If you can't help, offer to transfer.
- NEVER share restricted information.
- No markdown/special chars — this is spoken aloud.
- If caller seems frustrated (especially if repeat caller), be extra empathetic.

RESPOND AS THE RECEPTIONIST:`)

	return Prompt{
		System:      orDefault(tc.Personality, defaultPersonality),
		Text:        b.String(),
		Temperature: 0.3,
		MaxTokens:   512,
	}
}

func questionsPrompt(businessName, businessType string) Prompt {
	return Prompt{
		System: "Return only valid JSON array.",
		Text: fmt.Sprintf(`Generate 8 setup interview questions for an AI receptionist.
Business: %s (%s)

Return JSON array: [{"id":1,"question":"...","field_name":"...","required":true/false}]
Fields needed: greeting, business_hours, services_offered, transfer_number,
after_hours_message, common_questions, restricted_info, special_instructions`, businessName, businessType),
		JSON:        true,
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

const analysisSchema = `{
  "summary": "2-3 sentence summary",
  "category": "order|complaint|enquiry|booking|support|return|spam|other",
  "sentiment": "positive|neutral|negative",
  "caller_name": "caller's name if mentioned, otherwise empty string",
  "caller_intent": "one sentence",
  "resolution": "resolved|escalated|unresolved|voicemail",
  "action_items": ["..."],
  "should_create_ticket": true/false,
  "ticket_data": {"type":"...","priority":"low|normal|high|urgent","subject":"...","description":"...","caller_name":"..."}
}`

func audioAnalysisPrompt(businessName, businessType string, audio Audio) Prompt {
	schema := strings.Replace(analysisSchema, "{\n", "{\n  \"transcript\": \"full transcript with Agent:/Caller: labels\",\n", 1)
	return Prompt{
		System:      fmt.Sprintf(analysisSystemFmt, businessName, businessType),
		Text:        "Analyze this call recording. Return JSON:\n" + schema,
		Audio:       &audio,
		JSON:        true,
		Temperature: 0.2,
		MaxTokens:   8192,
	}
}

func transcriptAnalysisPrompt(businessName, businessType, transcript string) Prompt {
	return Prompt{
		System:      fmt.Sprintf(analysisSystemFmt, businessName, businessType),
		Text:        "Analyze this transcript. Return JSON:\n" + analysisSchema + "\n\nTRANSCRIPT:\n" + transcript,
		JSON:        true,
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

func agentConfigPrompt(businessName, businessType string, answers map[string]string) Prompt {
	raw, _ := json.Marshal(answers)
	return Prompt{
		System: "Expert AI agent configurator. Return valid JSON only.",
		Text: fmt.Sprintf(`Build an AI receptionist config from onboarding answers.
Business: %s (%s)
Answers: %s

Return JSON with keys:
greeting, business_hours, after_hours_message, transfer_number,
agent_personality (detailed system prompt), services, faq (array of q/a),
restricted_info, special_instructions`, businessName, businessType, raw),
		JSON:        true,
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

// FormatTranscript renders a conversation log as "Role: text" lines.
func FormatTranscript(log []calls.Entry) string {
	lines := make([]string, 0, len(log))
	for _, e := range log {
		lines = append(lines, fmt.Sprintf("%s: %s", e.Role, e.Text))
	}
	return strings.Join(lines, "\n")
}
