package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebot/internal/ai"
	"voicebot/internal/business"
	"voicebot/internal/calls"
	"voicebot/internal/events"
	"voicebot/internal/session"
	"voicebot/internal/telephony"
	"voicebot/internal/tickets"
	"voicebot/internal/usage"
)

type stubAnalyzer struct {
	mu     sync.Mutex
	result ai.AnalysisResult
	inputs []ai.AnalysisInput
}

func (s *stubAnalyzer) AnalyzeCall(_ context.Context, in ai.AnalysisInput) ai.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, in)
	return s.result
}

func (s *stubAnalyzer) seen() []ai.AnalysisInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.AnalysisInput(nil), s.inputs...)
}

type countingDecr struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *countingDecr) Decr(_ context.Context, businessID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = map[string]int{}
	}
	c.n[businessID]++
	return 0, nil
}

func (c *countingDecr) count(businessID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[businessID]
}

type recorderHarness struct {
	rec      *Recorder
	biz      *business.MemoryRepo
	calls    *calls.MemoryRepo
	usage    *usage.MemoryRepo
	tickets  *tickets.MemoryRepo
	analyzer *stubAnalyzer
	counter  *countingDecr
	phone    *telephony.MemoryGateway
	pub      *events.Memory
	sessions *session.Calls
}

var finishedAt = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

func newRecorderHarness(t *testing.T) *recorderHarness {
	t.Helper()
	biz := business.NewMemoryRepo()
	biz.Businesses["b1"] = business.Business{
		ID: "b1", Name: "Harbour Dental", Type: "dentist", Tier: business.TierStarter, OwnerPhone: "+447700900123",
	}
	h := &recorderHarness{
		biz:      biz,
		calls:    calls.NewMemoryRepo(),
		usage:    usage.NewMemoryRepo(),
		tickets:  tickets.NewMemoryRepo(),
		analyzer: &stubAnalyzer{},
		counter:  &countingDecr{},
		phone:    telephony.NewMemoryGateway(),
		pub:      &events.Memory{},
		sessions: session.NewCalls(session.NewMemoryStore(), 0),
	}
	h.analyzer.result = ai.AnalysisResult{
		Source: ai.SourceTranscript,
		Analysis: ai.CallAnalysis{
			Summary: "Caller booked a check-up.", Category: "booking", Sentiment: "positive",
			CallerName: "Sam", Resolution: "resolved", ActionItems: []string{"confirm slot"},
		},
	}

	r := NewRecorder()
	r.Calls = h.calls
	r.Businesses = biz
	r.Sessions = h.sessions
	r.AI = h.analyzer
	r.Tickets = h.tickets
	r.Usage = usage.NewTracker(h.usage)
	r.ActiveCalls = h.counter
	r.Telephony = h.phone
	r.Events = events.NewEmitter(h.pub, nil, nil)
	r.Now = func() time.Time { return finishedAt }
	h.rec = r

	h.calls.Put(calls.Call{
		ID: "c1", ProviderCallSID: "CA1", BusinessID: "b1", CallerNumber: "+447700900555",
		Status: calls.StatusInProgress, LastTurn: 1, CreatedAt: finishedAt.Add(-3 * time.Minute),
		ConversationLog: []calls.Entry{{Role: calls.RoleAgent, Text: "Hello"}, {Role: calls.RoleCaller, Text: "I need a check-up"}},
	})
	return h
}

func (h *recorderHarness) status(t *testing.T, status string, seconds int) bool {
	t.Helper()
	won := h.rec.HandleStatus(context.Background(), telephony.StatusEvent{CallSid: "CA1", CallStatus: status, DurationSeconds: seconds})
	h.rec.Wait()
	return won
}

func (h *recorderHarness) call(t *testing.T) calls.Call {
	t.Helper()
	c, err := h.calls.GetBySID(context.Background(), "CA1")
	require.NoError(t, err)
	return c
}

func TestHandleStatus_CompletedAnalyzesAndAccrues(t *testing.T) {
	h := newRecorderHarness(t)

	require.True(t, h.status(t, "completed", 125))

	c := h.call(t)
	assert.Equal(t, calls.StatusCompleted, c.Status)
	assert.Equal(t, 125, c.DurationSeconds)
	assert.Equal(t, "Caller booked a check-up.", c.Summary)
	assert.Equal(t, "booking", c.Category)
	assert.Equal(t, "Agent: Hello\nCaller: I need a check-up", c.Transcript)

	rec, err := h.usage.Get(context.Background(), "b1", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 2.08, rec.MinutesUsed)
	assert.Equal(t, 200, rec.MinutesLimit)
	assert.Equal(t, 1, h.counter.count("b1"))
	assert.Zero(t, h.tickets.Len())

	done := h.pub.OfType(events.TypeCallCompleted)
	require.Len(t, done, 1)
	payload := done[0].Data.(events.CallCompleted)
	assert.True(t, payload.Analyzed)
	assert.Equal(t, 2.08, payload.Minutes)
}

func TestHandleStatus_DuplicateCompletedIsNoop(t *testing.T) {
	h := newRecorderHarness(t)

	require.True(t, h.status(t, "completed", 125))
	assert.False(t, h.status(t, "completed", 125))

	rec, _ := h.usage.Get(context.Background(), "b1", "2026-10")
	assert.Equal(t, 2.08, rec.MinutesUsed)
	assert.Equal(t, 1, h.counter.count("b1"))
	assert.Len(t, h.analyzer.seen(), 1)
	assert.Len(t, h.pub.OfType(events.TypeCallCompleted), 1)
}

func TestHandleStatus_NonTerminalIgnored(t *testing.T) {
	h := newRecorderHarness(t)

	assert.False(t, h.status(t, "in-progress", 0))
	assert.Equal(t, calls.StatusInProgress, h.call(t).Status)
	assert.Zero(t, h.counter.count("b1"))
}

func TestHandleStatus_NoAnswerMarksMissedWithoutAnalysis(t *testing.T) {
	h := newRecorderHarness(t)

	require.True(t, h.status(t, "no-answer", 0))

	assert.Equal(t, calls.StatusMissed, h.call(t).Status)
	assert.Empty(t, h.analyzer.seen())
	assert.Equal(t, 1, h.counter.count("b1"))
	_, err := h.usage.Get(context.Background(), "b1", "2026-10")
	assert.ErrorIs(t, err, usage.ErrNotFound)
}

func TestHandleStatus_AnalysisFailureKeepsCompleted(t *testing.T) {
	h := newRecorderHarness(t)
	empty := ai.EmptyAnalysis()
	h.analyzer.result = ai.AnalysisResult{Analysis: empty, Fallback: true, Err: errors.New("timeout")}
	h.analyzer.result.Analysis.ShouldCreateTicket = true
	h.analyzer.result.Analysis.TicketData = &ai.TicketData{Subject: "never"}

	require.True(t, h.status(t, "completed", 60))

	c := h.call(t)
	assert.Equal(t, calls.StatusCompleted, c.Status)
	assert.Equal(t, 60, c.DurationSeconds)
	assert.Equal(t, "Unable to analyze.", c.Summary)
	assert.NotEmpty(t, c.Transcript)
	assert.Zero(t, h.tickets.Len())

	payload := h.pub.OfType(events.TypeCallCompleted)[0].Data.(events.CallCompleted)
	assert.False(t, payload.Analyzed)
}

func TestHandleStatus_TicketCreatedOnce(t *testing.T) {
	h := newRecorderHarness(t)
	h.analyzer.result.Analysis.ShouldCreateTicket = true
	h.analyzer.result.Analysis.TicketData = &ai.TicketData{Type: "booking", Priority: "high", Subject: "Book check-up"}

	require.True(t, h.status(t, "completed", 90))
	h.status(t, "completed", 90)

	require.Equal(t, 1, h.tickets.Len())
	tk := h.tickets.Tickets[0]
	assert.Equal(t, "c1", tk.CallID)
	assert.Equal(t, tickets.PriorityHigh, tk.Priority)
	assert.Equal(t, "Sam", tk.CallerName)
	assert.Equal(t, "+447700900555", tk.CallerNumber)
	assert.Len(t, h.pub.OfType(events.TypeTicketCreated), 1)
}

func TestHandleStatus_SessionTranscriptPreferredAndRecordingLookedUp(t *testing.T) {
	h := newRecorderHarness(t)
	ctx := context.Background()
	require.NoError(t, h.sessions.SaveConversation(ctx, "CA1", []calls.Entry{{Role: calls.RoleCaller, Text: "from session"}}))
	h.phone.RecordingURLs["CA1"] = "https://api.twilio.com/rec/RE1"

	require.True(t, h.status(t, "completed", 30))

	seen := h.analyzer.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "Caller: from session", seen[0].Transcript)
	assert.Equal(t, "https://api.twilio.com/rec/RE1", seen[0].RecordingURL)
	assert.Equal(t, "https://api.twilio.com/rec/RE1", h.call(t).RecordingURL)

	_, found, _ := h.sessions.Conversation(ctx, "CA1")
	assert.False(t, found)
}

func TestHandleStatus_VoicemailKeepsStatusAndIsAnalyzed(t *testing.T) {
	h := newRecorderHarness(t)
	_, err := h.calls.MarkVoicemail(context.Background(), "CA1", "https://api.twilio.com/rec/VM1")
	require.NoError(t, err)

	require.True(t, h.status(t, "completed", 45))

	c := h.call(t)
	assert.Equal(t, calls.StatusVoicemail, c.Status)
	require.Len(t, h.analyzer.seen(), 1)
	assert.Equal(t, "https://api.twilio.com/rec/VM1", h.analyzer.seen()[0].RecordingURL)
}

func TestHandleStatus_CrossingEightyAlertsOnce(t *testing.T) {
	h := newRecorderHarness(t)
	h.usage.Seed(usage.Record{BusinessID: "b1", Month: "2026-10", MinutesUsed: 158, MinutesLimit: 200})

	require.True(t, h.status(t, "completed", 125))

	rec, _ := h.usage.Get(context.Background(), "b1", "2026-10")
	assert.True(t, rec.Alert80Sent)
	assert.False(t, rec.Alert90Sent)
	assert.False(t, rec.Alert100Sent)

	sms := h.phone.SentSMS()
	require.Len(t, sms, 1)
	assert.Equal(t, "+447700900123", sms[0].To)
	assert.Equal(t, usage.AlertText("Harbour Dental", 80), sms[0].Body)

	crossed := h.pub.OfType(events.TypeUsageThresholdCrossed)
	require.Len(t, crossed, 1)
	assert.Equal(t, 80, crossed[0].Data.(events.UsageThresholdCrossed).Threshold)
}

func TestHandleStatus_JumpFiresEveryThreshold(t *testing.T) {
	h := newRecorderHarness(t)
	h.usage.Seed(usage.Record{BusinessID: "b1", Month: "2026-10", MinutesUsed: 150, MinutesLimit: 200})

	require.True(t, h.status(t, "completed", 60*55))

	assert.Len(t, h.phone.SentSMS(), 3)
	assert.Len(t, h.pub.OfType(events.TypeUsageThresholdCrossed), 3)
}

func TestHandleStatus_FinalizeErrorDoesNothing(t *testing.T) {
	h := newRecorderHarness(t)
	h.calls.FailWrites = errors.New("db down")

	assert.False(t, h.status(t, "completed", 30))
	assert.Zero(t, h.counter.count("b1"))
	assert.Empty(t, h.analyzer.seen())
}

func TestHandleStatus_BusinessLookupFailureKeepsLimitAndDefersAlerts(t *testing.T) {
	h := newRecorderHarness(t)
	b := h.biz.Businesses["b1"]
	b.Tier = business.TierEnterprise
	h.biz.Businesses["b1"] = b
	h.usage.Seed(usage.Record{BusinessID: "b1", Month: "2026-10", MinutesUsed: 500, MinutesLimit: 2000})
	h.biz.GetErr = errors.New("db down")

	require.True(t, h.status(t, "completed", 60))

	rec, err := h.usage.Get(context.Background(), "b1", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 501.0, rec.MinutesUsed)
	assert.Equal(t, 2000, rec.MinutesLimit)
	assert.False(t, rec.Alert80Sent)
	assert.False(t, rec.Alert90Sent)
	assert.False(t, rec.Alert100Sent)
	assert.Empty(t, h.pub.OfType(events.TypeUsageThresholdCrossed))
	assert.Empty(t, h.phone.SentSMS())

	assert.Equal(t, calls.StatusCompleted, h.call(t).Status)
	assert.Equal(t, 1, h.counter.count("b1"))
	assert.Len(t, h.analyzer.seen(), 1)
}

func TestHandleStatus_AlertDeferredUntilBusinessLoads(t *testing.T) {
	h := newRecorderHarness(t)
	b := h.biz.Businesses["b1"]
	b.Tier = business.TierEnterprise
	h.biz.Businesses["b1"] = b
	h.usage.Seed(usage.Record{BusinessID: "b1", Month: "2026-10", MinutesUsed: 1599.5, MinutesLimit: 2000})
	h.biz.GetErr = errors.New("db down")

	// Crosses 80% while the tier is unknown.
	require.True(t, h.status(t, "completed", 60))
	assert.Empty(t, h.phone.SentSMS())

	h.biz.GetErr = nil
	h.calls.Put(calls.Call{
		ID: "c2", ProviderCallSID: "CA2", BusinessID: "b1", CallerNumber: "+447700900556",
		Status: calls.StatusInProgress, CreatedAt: finishedAt.Add(-time.Minute),
	})
	require.True(t, h.rec.HandleStatus(context.Background(), telephony.StatusEvent{CallSid: "CA2", CallStatus: "completed", DurationSeconds: 60}))
	h.rec.Wait()

	rec, _ := h.usage.Get(context.Background(), "b1", "2026-10")
	assert.Equal(t, 1601.5, rec.MinutesUsed)
	assert.True(t, rec.Alert80Sent)
	assert.False(t, rec.Alert90Sent)

	sms := h.phone.SentSMS()
	require.Len(t, sms, 1)
	assert.Equal(t, usage.AlertText("Harbour Dental", 80), sms[0].Body)
	assert.Len(t, h.pub.OfType(events.TypeUsageThresholdCrossed), 1)
}
