package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicebot/internal/dialogue"
	"voicebot/internal/metrics"
	"voicebot/internal/telephony"
	"voicebot/pkg/logger"
)

const contentTypeXML = "application/xml"

// hangupTwiML is served if a response cannot be rendered.
const hangupTwiML = `<?xml version="1.0" encoding="UTF-8"?>
<Response><Hangup/></Response>`

type CallEngine interface {
	HandleIncoming(ctx context.Context, in telephony.InboundCall) dialogue.Outcome
	HandleSpeech(ctx context.Context, ev telephony.SpeechEvent) dialogue.Outcome
	HandleTransfer(ctx context.Context, req telephony.TransferRequest) dialogue.Outcome
	HandleVoicemailComplete(ctx context.Context, ev telephony.RecordingEvent) dialogue.Outcome
	Fallback(ctx context.Context, callSid string) dialogue.Outcome
}

type InterviewEngine interface {
	HandleStart(ctx context.Context, ev telephony.OnboardingEvent) telephony.Response
	HandleAnswer(ctx context.Context, ev telephony.OnboardingEvent) telephony.Response
	HandleNext(ctx context.Context, ev telephony.OnboardingEvent) telephony.Response
	HandleStatus(ctx context.Context, ev telephony.OnboardingEvent)
}

type StatusRecorder interface {
	HandleStatus(ctx context.Context, ev telephony.StatusEvent) bool
}

// Webhooks serves the provider callbacks. Handlers parse, delegate and
// render; malformed input is the only error a caller-facing handler returns.
type Webhooks struct {
	Calls      CallEngine
	Interviews InterviewEngine
	Recorder   StatusRecorder
	Metrics    *metrics.Metrics
}

func (h Webhooks) render(c *gin.Context, endpoint string, res telephony.Response) {
	body, err := telephony.RenderTwiML(res)
	if err != nil {
		logger.FromGin(c).Error("render twiml failed", "endpoint", endpoint, "err", err)
		h.Metrics.Webhook(endpoint, "render_error")
		c.Data(http.StatusOK, contentTypeXML, []byte(hangupTwiML))
		return
	}
	h.Metrics.Webhook(endpoint, "ok")
	c.Data(http.StatusOK, contentTypeXML, []byte(body))
}

func (h Webhooks) badRequest(c *gin.Context, endpoint string, err error) {
	logger.FromGin(c).Warn("malformed webhook", "endpoint", endpoint, "err", err)
	h.Metrics.Webhook(endpoint, "bad_request")
	c.AbortWithStatus(http.StatusBadRequest)
}

func (h Webhooks) ack(c *gin.Context, endpoint string) {
	h.Metrics.Webhook(endpoint, "ok")
	c.Status(http.StatusNoContent)
}

func (h Webhooks) IncomingCall(c *gin.Context) {
	const endpoint = "incoming-call"
	in, err := telephony.ParseInboundCall(c.Request)
	if err != nil {
		h.badRequest(c, endpoint, err)
		return
	}
	h.render(c, endpoint, h.Calls.HandleIncoming(c.Request.Context(), in).Response)
}

func (h Webhooks) GatherResponse(c *gin.Context) {
	const endpoint = "gather-response"
	ev, err := telephony.ParseSpeechEvent(c.Request)
	if err != nil {
		h.badRequest(c, endpoint, err)
		return
	}
	h.render(c, endpoint, h.Calls.HandleSpeech(c.Request.Context(), ev).Response)
}

func (h Webhooks) Transfer(c *gin.Context) {
	const endpoint = "transfer"
	req, err := telephony.ParseTransferRequest(c.Request)
	if err != nil {
		h.badRequest(c, endpoint, err)
		return
	}
	h.render(c, endpoint, h.Calls.HandleTransfer(c.Request.Context(), req).Response)
}

func (h Webhooks) CallStatus(c *gin.Context) {
	const endpoint = "call-status"
	ev, err := telephony.ParseStatusEvent(c.Request)
	if err != nil {
		h.badRequest(c, endpoint, err)
		return
	}
	h.Recorder.HandleStatus(c.Request.Context(), ev)
	h.ack(c, endpoint)
}

func (h Webhooks) VoicemailComplete(c *gin.Context) {
	const endpoint = "voicemail-complete"
	ev, err := telephony.ParseRecordingEvent(c.Request)
	if err != nil {
		h.badRequest(c, endpoint, err)
		return
	}
	h.render(c, endpoint, h.Calls.HandleVoicemailComplete(c.Request.Context(), ev).Response)
}

// RecordingStatus only acknowledges; the recorder looks recordings up itself.
func (h Webhooks) RecordingStatus(c *gin.Context) {
	const endpoint = "recording-status"
	ev, err := telephony.ParseRecordingEvent(c.Request)
	if err != nil {
		h.badRequest(c, endpoint, err)
		return
	}
	logger.FromGin(c).Info("recording status", "recording_sid", ev.RecordingSid, "status", ev.RecordingStatus)
	h.ack(c, endpoint)
}

func (h Webhooks) CallFallback(c *gin.Context) {
	const endpoint = "call-fallback"
	sid := c.Request.PostFormValue("CallSid")
	h.render(c, endpoint, h.Calls.Fallback(c.Request.Context(), sid).Response)
}

func (h Webhooks) IncomingSMS(c *gin.Context) {
	const endpoint = "incoming-sms"
	logger.FromGin(c).Info("inbound sms ignored", "from", c.Request.PostFormValue("From"))
	h.ack(c, endpoint)
}

func (h Webhooks) onboarding(endpoint string, handle func(context.Context, telephony.OnboardingEvent) telephony.Response) gin.HandlerFunc {
	return func(c *gin.Context) {
		ev, err := telephony.ParseOnboardingEvent(c.Request)
		if err != nil {
			h.badRequest(c, endpoint, err)
			return
		}
		h.render(c, endpoint, handle(c.Request.Context(), ev))
	}
}

func (h Webhooks) OnboardingStart() gin.HandlerFunc {
	return h.onboarding("onboarding-start", h.Interviews.HandleStart)
}

func (h Webhooks) OnboardingAnswer() gin.HandlerFunc {
	return h.onboarding("onboarding-answer", h.Interviews.HandleAnswer)
}

func (h Webhooks) OnboardingNext() gin.HandlerFunc {
	return h.onboarding("onboarding-next", h.Interviews.HandleNext)
}

func (h Webhooks) OnboardingStatus(c *gin.Context) {
	const endpoint = "onboarding-status"
	ev, err := telephony.ParseOnboardingEvent(c.Request)
	if err != nil {
		h.badRequest(c, endpoint, err)
		return
	}
	h.Interviews.HandleStatus(c.Request.Context(), ev)
	h.ack(c, endpoint)
}

// Register mounts every webhook on g.
func (h Webhooks) Register(g gin.IRoutes) {
	g.POST("/incoming-call", h.IncomingCall)
	g.POST("/gather-response", h.GatherResponse)
	g.POST("/transfer", h.Transfer)
	g.POST("/call-status", h.CallStatus)
	g.POST("/voicemail-complete", h.VoicemailComplete)
	g.POST("/recording-status", h.RecordingStatus)
	g.POST("/call-fallback", h.CallFallback)
	g.POST("/incoming-sms", h.IncomingSMS)
	g.POST("/onboarding-start", h.OnboardingStart())
	g.POST("/onboarding-answer", h.OnboardingAnswer())
	g.POST("/onboarding-next", h.OnboardingNext())
	g.POST("/onboarding-status", h.OnboardingStatus)
}
