package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voicebot/internal/business"
	"voicebot/internal/metrics"
)

// TurnFallback is spoken when the turn response cannot be generated in time.
const TurnFallback = "I'm sorry, could you repeat that? I want to make sure I help you properly."

const (
	opQuestions = "onboarding_questions"
	opTurn      = "turn_response"
	opAnalysis  = "call_analysis"
	opConfig    = "agent_config"
)

// RecordingFetcher downloads call audio for analysis.
type RecordingFetcher interface {
	FetchRecording(ctx context.Context, url string) (Audio, error)
}

// RecordingFetcherFunc adapts a function to RecordingFetcher.
type RecordingFetcherFunc func(ctx context.Context, url string) (Audio, error)

func (f RecordingFetcherFunc) FetchRecording(ctx context.Context, url string) (Audio, error) {
	return f(ctx, url)
}

type Timeouts struct {
	Text  time.Duration
	Turn  time.Duration
	Audio time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Text <= 0 {
		t.Text = 30 * time.Second
	}
	if t.Turn <= 0 {
		t.Turn = 8 * time.Second
	}
	if t.Audio <= 0 {
		t.Audio = 120 * time.Second
	}
	return t
}

// Gateway runs the four AI operations against a Model. Each operation is
// bounded by its timeout and always returns a usable value.
type Gateway struct {
	model    Model
	fetcher  RecordingFetcher
	timeouts Timeouts
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Gateway)

func WithRecordingFetcher(f RecordingFetcher) Option { return func(g *Gateway) { g.fetcher = f } }
func WithTimeouts(t Timeouts) Option                 { return func(g *Gateway) { g.timeouts = t } }
func WithMetrics(m *metrics.Metrics) Option          { return func(g *Gateway) { g.metrics = m } }
func WithLogger(l *slog.Logger) Option               { return func(g *Gateway) { g.log = l } }

func NewGateway(model Model, opts ...Option) *Gateway {
	g := &Gateway{model: model, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	g.timeouts = g.timeouts.withDefaults()
	return g
}

func (g *Gateway) generate(ctx context.Context, timeout time.Duration, p Prompt) (string, error) {
	if g.model == nil {
		return "", errors.New("ai: no model configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return g.model.Generate(ctx, p)
}

func (g *Gateway) observe(op string, start time.Time, fallback bool, err error) {
	g.metrics.AIRequest(op, fallback, g.now().Sub(start))
	if fallback {
		g.log.Warn("ai operation fell back", "operation", op, "err", err)
	}
}

// Question is one onboarding interview question.
type Question struct {
	ID        int    `json:"id"`
	Question  string `json:"question"`
	FieldName string `json:"field_name"`
	Required  bool   `json:"required"`
}

type QuestionsResult struct {
	Questions []Question
	Fallback  bool
	Err       error
}

// FallbackQuestions is the fixed interview used when generation fails.
func FallbackQuestions(businessName string) []Question {
	return []Question{
		{ID: 1, Question: fmt.Sprintf("What services does %s offer?", businessName), FieldName: "services_offered", Required: true},
		{ID: 2, Question: "What are your business hours?", FieldName: "business_hours", Required: true},
		{ID: 3, Question: "How should the AI greet callers?", FieldName: "greeting", Required: true},
		{ID: 4, Question: "What are the most common reasons customers call?", FieldName: "common_questions", Required: true},
		{ID: 5, Question: "What number should calls transfer to when the AI can't help?", FieldName: "transfer_number"},
		{ID: 6, Question: "What happens after hours?", FieldName: "after_hours_message"},
		{ID: 7, Question: "Any information the AI must never share?", FieldName: "restricted_info"},
		{ID: 8, Question: "Any other special instructions?", FieldName: "special_instructions"},
	}
}

// OnboardingQuestions generates the interview question list.
func (g *Gateway) OnboardingQuestions(ctx context.Context, businessName, businessType string) QuestionsResult {
	start := g.now()
	out, err := g.generate(ctx, g.timeouts.Text, questionsPrompt(businessName, businessType))
	var qs []Question
	if err == nil {
		qs, err = parseQuestions(out)
	}
	if err != nil {
		g.observe(opQuestions, start, true, err)
		return QuestionsResult{Questions: FallbackQuestions(businessName), Fallback: true, Err: err}
	}
	g.observe(opQuestions, start, false, nil)
	return QuestionsResult{Questions: qs}
}

func parseQuestions(raw string) ([]Question, error) {
	raw = stripFences(raw)
	var qs []Question
	if err := json.Unmarshal([]byte(raw), &qs); err != nil {
		// JSON-object response modes wrap the array: {"questions": [...]}.
		var wrapped map[string]json.RawMessage
		if json.Unmarshal([]byte(raw), &wrapped) != nil {
			return nil, fmt.Errorf("ai: decode questions: %w", err)
		}
		for _, v := range wrapped {
			if json.Unmarshal(v, &qs) == nil && len(qs) > 0 {
				break
			}
		}
	}
	valid := qs[:0]
	for i, q := range qs {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}
		if q.FieldName == "" {
			q.FieldName = fmt.Sprintf("question_%d", i)
		}
		if q.ID == 0 {
			q.ID = i + 1
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, errors.New("ai: no questions in response")
	}
	return valid, nil
}

type TurnResult struct {
	Text     string
	Fallback bool
	Err      error
}

// TurnResponse generates the agent's next spoken line. The caller is on hold
// for the duration, so it runs under the turn timeout.
func (g *Gateway) TurnResponse(ctx context.Context, tc TurnContext) TurnResult {
	start := g.now()
	out, err := g.generate(ctx, g.timeouts.Turn, TurnPrompt(tc))
	if err == nil {
		out = speakable(out)
		if out == "" {
			err = ErrEmptyResponse
		}
	}
	if err != nil {
		g.observe(opTurn, start, true, err)
		return TurnResult{Text: TurnFallback, Fallback: true, Err: err}
	}
	g.observe(opTurn, start, false, nil)
	return TurnResult{Text: out}
}

// speakable drops markdown emphasis and bullets the model sometimes emits.
func speakable(s string) string {
	s = strings.NewReplacer("**", "", "__", "", "`", "", "#", "").Replace(s)
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(l), "-*•"))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, " ")
}

var (
	categories  = []string{"order", "complaint", "enquiry", "booking", "support", "return", "spam", "other"}
	sentiments  = []string{"positive", "neutral", "negative"}
	resolutions = []string{"resolved", "escalated", "unresolved", "voicemail"}
)

// TicketData is the model's proposed follow-up ticket.
type TicketData struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	CallerName  string `json:"caller_name"`
}

// CallAnalysis is the structured post-call enrichment.
type CallAnalysis struct {
	Transcript         string      `json:"transcript"`
	Summary            string      `json:"summary"`
	Category           string      `json:"category"`
	Sentiment          string      `json:"sentiment"`
	CallerName         string      `json:"caller_name"`
	CallerIntent       string      `json:"caller_intent"`
	Resolution         string      `json:"resolution"`
	ActionItems        []string    `json:"action_items"`
	ShouldCreateTicket bool        `json:"should_create_ticket"`
	TicketData         *TicketData `json:"ticket_data"`
}

// EmptyAnalysis is archived when analysis fails.
func EmptyAnalysis() CallAnalysis {
	return CallAnalysis{
		Summary:      "Unable to analyze.",
		Category:     "other",
		Sentiment:    "neutral",
		CallerIntent: "unknown",
		Resolution:   "unresolved",
		ActionItems:  []string{},
	}
}

func oneOf(v string, allowed []string, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}

func (a CallAnalysis) normalize() CallAnalysis {
	a.Category = oneOf(a.Category, categories, "other")
	a.Sentiment = oneOf(a.Sentiment, sentiments, "neutral")
	a.Resolution = oneOf(a.Resolution, resolutions, "unresolved")
	a.CallerName = strings.TrimSpace(a.CallerName)
	if a.ActionItems == nil {
		a.ActionItems = []string{}
	}
	if !a.ShouldCreateTicket {
		a.TicketData = nil
	}
	return a
}

type AnalysisSource string

const (
	SourceAudio      AnalysisSource = "audio"
	SourceTranscript AnalysisSource = "transcript"
	SourceNone       AnalysisSource = "none"
)

// AnalysisInput names the call artifacts available for analysis.
type AnalysisInput struct {
	RecordingURL string
	Transcript   string
	BusinessName string
	BusinessType string
}

type AnalysisResult struct {
	Analysis CallAnalysis
	Source   AnalysisSource
	// Skipped is set when there was nothing to analyze; it is not an error.
	Skipped  bool
	Fallback bool
	Err      error
}

// AnalyzeCall prefers the recording and falls back to the transcript. With
// neither, the analysis is skipped and left empty.
func (g *Gateway) AnalyzeCall(ctx context.Context, in AnalysisInput) AnalysisResult {
	hasTranscript := strings.TrimSpace(in.Transcript) != ""
	if in.RecordingURL == "" && !hasTranscript {
		return AnalysisResult{Analysis: CallAnalysis{ActionItems: []string{}}, Source: SourceNone, Skipped: true}
	}

	start := g.now()
	var errs []error
	if in.RecordingURL != "" && g.fetcher != nil {
		a, err := g.analyzeAudio(ctx, in)
		if err == nil {
			g.observe(opAnalysis, start, false, nil)
			return AnalysisResult{Analysis: a, Source: SourceAudio}
		}
		errs = append(errs, err)
	}
	if hasTranscript {
		out, err := g.generate(ctx, g.timeouts.Text, transcriptAnalysisPrompt(in.BusinessName, in.BusinessType, in.Transcript))
		var a CallAnalysis
		if err == nil {
			a, err = parseAnalysis(out)
		}
		if err == nil {
			if a.Transcript == "" {
				a.Transcript = in.Transcript
			}
			g.observe(opAnalysis, start, false, nil)
			return AnalysisResult{Analysis: a, Source: SourceTranscript}
		}
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err == nil {
		err = errors.New("ai: no analysis source usable")
	}
	g.observe(opAnalysis, start, true, err)
	empty := EmptyAnalysis()
	empty.Transcript = in.Transcript
	return AnalysisResult{Analysis: empty, Fallback: true, Err: err}
}

// analyzeAudio runs under the audio timeout, which covers the fetch too.
func (g *Gateway) analyzeAudio(ctx context.Context, in AnalysisInput) (CallAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeouts.Audio)
	defer cancel()

	audio, err := g.fetcher.FetchRecording(ctx, in.RecordingURL)
	if err != nil {
		return CallAnalysis{}, fmt.Errorf("ai: fetch recording: %w", err)
	}
	out, err := g.generate(ctx, g.timeouts.Audio, audioAnalysisPrompt(in.BusinessName, in.BusinessType, audio))
	if err != nil {
		return CallAnalysis{}, err
	}
	return parseAnalysis(out)
}

func parseAnalysis(raw string) (CallAnalysis, error) {
	var a CallAnalysis
	if err := json.Unmarshal([]byte(stripFences(raw)), &a); err != nil {
		return CallAnalysis{}, fmt.Errorf("ai: decode analysis: %w", err)
	}
	return a.normalize(), nil
}

type ConfigResult struct {
	Config   business.AgentConfig
	Fallback bool
	Err      error
}

// FallbackAgentConfig is the minimal reviewable config written when
// synthesis fails.
func FallbackAgentConfig(businessName string) business.AgentConfig {
	return business.AgentConfig{
		Greeting:          fmt.Sprintf("Hello, thank you for calling %s. How can I help you today?", businessName),
		Personality:       fmt.Sprintf("You are a friendly receptionist for %s.", businessName),
		AfterHoursMessage: "We're currently closed. Please call back during business hours.",
		FAQ:               []business.FAQ{},
	}
}

// SynthesizeAgentConfig turns interview answers into an agent configuration.
func (g *Gateway) SynthesizeAgentConfig(ctx context.Context, businessName, businessType string, answers map[string]string) ConfigResult {
	start := g.now()
	out, err := g.generate(ctx, g.timeouts.Text, agentConfigPrompt(businessName, businessType, answers))
	var cfg business.AgentConfig
	if err == nil {
		cfg, err = parseAgentConfig(out)
	}
	if err != nil {
		g.observe(opConfig, start, true, err)
		return ConfigResult{Config: FallbackAgentConfig(businessName), Fallback: true, Err: err}
	}
	g.observe(opConfig, start, false, nil)
	return ConfigResult{Config: cfg}
}

// looseText accepts a string, a list of strings, or any other JSON value.
type looseText string

func (t *looseText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = looseText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = looseText(strings.Join(list, ", "))
		return nil
	}
	if string(b) == "null" {
		*t = ""
		return nil
	}
	*t = looseText(b)
	return nil
}

type synthesizedConfig struct {
	Greeting            looseText       `json:"greeting"`
	BusinessHours       json.RawMessage `json:"business_hours"`
	AfterHoursMessage   looseText       `json:"after_hours_message"`
	TransferNumber      looseText       `json:"transfer_number"`
	Personality         looseText       `json:"agent_personality"`
	Services            looseText       `json:"services"`
	FAQ                 []business.FAQ  `json:"faq"`
	RestrictedInfo      looseText       `json:"restricted_info"`
	SpecialInstructions looseText       `json:"special_instructions"`
}

func parseAgentConfig(raw string) (business.AgentConfig, error) {
	var s synthesizedConfig
	if err := json.Unmarshal([]byte(stripFences(raw)), &s); err != nil {
		return business.AgentConfig{}, fmt.Errorf("ai: decode agent config: %w", err)
	}
	cfg := business.AgentConfig{
		Greeting:            strings.TrimSpace(string(s.Greeting)),
		Personality:         strings.TrimSpace(string(s.Personality)),
		AfterHoursMessage:   strings.TrimSpace(string(s.AfterHoursMessage)),
		TransferNumber:      strings.TrimSpace(string(s.TransferNumber)),
		RestrictedInfo:      strings.TrimSpace(string(s.RestrictedInfo)),
		Services:            strings.TrimSpace(string(s.Services)),
		SpecialInstructions: strings.TrimSpace(string(s.SpecialInstructions)),
		FAQ:                 s.FAQ,
	}
	if cfg.FAQ == nil {
		cfg.FAQ = []business.FAQ{}
	}
	// Free-text hours are common; only a structured weekday map is kept.
	if hours, err := business.ParseSchedule(s.BusinessHours); err == nil {
		cfg.Hours = hours
	}
	if cfg.Greeting == "" && cfg.Personality == "" {
		return business.AgentConfig{}, errors.New("ai: agent config missing greeting and personality")
	}
	return cfg, nil
}
