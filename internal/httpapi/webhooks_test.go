package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebot/internal/dialogue"
	"voicebot/internal/metrics"
	"voicebot/internal/telephony"
)

type fakeCalls struct {
	incoming []telephony.InboundCall
	speech   []telephony.SpeechEvent
	fallback []string
	response telephony.Response
}

func (f *fakeCalls) HandleIncoming(_ context.Context, in telephony.InboundCall) dialogue.Outcome {
	f.incoming = append(f.incoming, in)
	return dialogue.Outcome{Response: f.response}
}

func (f *fakeCalls) HandleSpeech(_ context.Context, ev telephony.SpeechEvent) dialogue.Outcome {
	f.speech = append(f.speech, ev)
	return dialogue.Outcome{Response: f.response}
}

func (f *fakeCalls) HandleTransfer(context.Context, telephony.TransferRequest) dialogue.Outcome {
	return dialogue.Outcome{Response: f.response}
}

func (f *fakeCalls) HandleVoicemailComplete(context.Context, telephony.RecordingEvent) dialogue.Outcome {
	return dialogue.Outcome{Response: f.response}
}

func (f *fakeCalls) Fallback(_ context.Context, sid string) dialogue.Outcome {
	f.fallback = append(f.fallback, sid)
	return dialogue.Outcome{Response: f.response}
}

type fakeInterviews struct {
	answers  []telephony.OnboardingEvent
	statuses []telephony.OnboardingEvent
}

func (f *fakeInterviews) HandleStart(context.Context, telephony.OnboardingEvent) telephony.Response {
	return telephony.NewScript(telephony.Voice{}).Say("Welcome").Response()
}

func (f *fakeInterviews) HandleAnswer(_ context.Context, ev telephony.OnboardingEvent) telephony.Response {
	f.answers = append(f.answers, ev)
	return telephony.NewScript(telephony.Voice{}).Say("Thanks").Response()
}

func (f *fakeInterviews) HandleNext(context.Context, telephony.OnboardingEvent) telephony.Response {
	return telephony.NewScript(telephony.Voice{}).Hangup().Response()
}

func (f *fakeInterviews) HandleStatus(_ context.Context, ev telephony.OnboardingEvent) {
	f.statuses = append(f.statuses, ev)
}

type fakeRecorder struct {
	events []telephony.StatusEvent
}

func (f *fakeRecorder) HandleStatus(_ context.Context, ev telephony.StatusEvent) bool {
	f.events = append(f.events, ev)
	return true
}

type webhookHarness struct {
	router     *gin.Engine
	calls      *fakeCalls
	interviews *fakeInterviews
	recorder   *fakeRecorder
	metrics    *metrics.Metrics
}

func newWebhookHarness(t *testing.T) *webhookHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &webhookHarness{
		calls: &fakeCalls{
			response: telephony.NewScript(telephony.Voice{}).Say("Hello, how can I help?").Hangup().Response(),
		},
		interviews: &fakeInterviews{},
		recorder:   &fakeRecorder{},
		metrics:    metrics.New(prometheus.NewRegistry()),
	}
	r := gin.New()
	Webhooks{
		Calls:      h.calls,
		Interviews: h.interviews,
		Recorder:   h.recorder,
		Metrics:    h.metrics,
	}.Register(r.Group("/webhook"))
	h.router = r
	return h
}

func (h *webhookHarness) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestIncomingCall_RendersTwiML(t *testing.T) {
	h := newWebhookHarness(t)

	w := h.post("/webhook/incoming-call", url.Values{
		"CallSid": {"CA1"}, "From": {"+447700900555"}, "Called": {"+442071234567"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, w.Body.String(), "<Say")
	assert.Contains(t, w.Body.String(), "Hello, how can I help?")
	assert.Contains(t, w.Body.String(), "<Hangup></Hangup>")

	require.Len(t, h.calls.incoming, 1)
	assert.Equal(t, "+442071234567", h.calls.incoming[0].Called)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WebhookRequests.WithLabelValues("incoming-call", "ok")))
}

func TestIncomingCall_MissingCallSidIsBadRequest(t *testing.T) {
	h := newWebhookHarness(t)

	w := h.post("/webhook/incoming-call", url.Values{"From": {"+447700900555"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, h.calls.incoming)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WebhookRequests.WithLabelValues("incoming-call", "bad_request")))
}

func TestGatherResponse_ReadsTurnFromQuery(t *testing.T) {
	h := newWebhookHarness(t)

	w := h.post("/webhook/gather-response?business_id=b1&call_sid=CA1&turn=3", url.Values{
		"SpeechResult": {" I'd like to book "}, "Confidence": {"0.91"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.calls.speech, 1)
	ev := h.calls.speech[0]
	assert.Equal(t, "CA1", ev.CallSid)
	assert.Equal(t, "b1", ev.BusinessID)
	assert.Equal(t, 3, ev.Turn)
	assert.Equal(t, "I'd like to book", ev.Speech)
}

func TestGatherResponse_BadTurn(t *testing.T) {
	h := newWebhookHarness(t)

	w := h.post("/webhook/gather-response?call_sid=CA1&turn=x", url.Values{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, h.calls.speech)
}

func TestRender_FailureFallsBackToHangup(t *testing.T) {
	h := newWebhookHarness(t)
	h.calls.response = telephony.Response{Instructions: []telephony.Instruction{{Verb: telephony.VerbRedirect}}}

	w := h.post("/webhook/call-fallback", url.Values{"CallSid": {"CA1"}})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hangupTwiML, w.Body.String())
	assert.Equal(t, []string{"CA1"}, h.calls.fallback)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WebhookRequests.WithLabelValues("call-fallback", "render_error")))
}

func TestCallStatus_Acknowledges(t *testing.T) {
	h := newWebhookHarness(t)

	w := h.post("/webhook/call-status", url.Values{
		"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"125"},
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, h.recorder.events, 1)
	assert.Equal(t, "completed", h.recorder.events[0].CallStatus)
	assert.Equal(t, 125, h.recorder.events[0].DurationSeconds)
}

func TestIncomingSMS_Acknowledges(t *testing.T) {
	h := newWebhookHarness(t)

	w := h.post("/webhook/incoming-sms", url.Values{"From": {"+447700900555"}, "Body": {"hi"}})

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOnboardingAnswer_PassesQuestionIndex(t *testing.T) {
	h := newWebhookHarness(t)

	w := h.post("/webhook/onboarding-answer?business_id=b1&onboarding_id=ob1&q=2", url.Values{
		"CallSid": {"CA9"}, "SpeechResult": {"Nine to five"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Thanks")
	require.Len(t, h.interviews.answers, 1)
	ev := h.interviews.answers[0]
	assert.Equal(t, "ob1", ev.InterviewID)
	assert.Equal(t, 2, ev.Question)
	assert.Equal(t, "Nine to five", ev.Speech)
}

func TestOnboardingStatus_RequiresInterviewID(t *testing.T) {
	h := newWebhookHarness(t)

	w := h.post("/webhook/onboarding-status", url.Values{"CallSid": {"CA9"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.post("/webhook/onboarding-status?onboarding_id=ob1", url.Values{"CallSid": {"CA9"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, h.interviews.statuses, 1)
	assert.Equal(t, "completed", h.interviews.statuses[0].CallStatus)
}
