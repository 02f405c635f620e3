package dialogue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"voicebot/internal/ai"
	"voicebot/internal/business"
	"voicebot/internal/calls"
	"voicebot/internal/metrics"
	"voicebot/internal/session"
	"voicebot/internal/telephony"
	"voicebot/pkg/logger"
)

const (
	DefaultMaxTurns = 15
	historyCalls    = 2
	knowledgeCap    = 5
)

// Directory is the read side of business configuration.
type Directory interface {
	ResolveByNumber(ctx context.Context, number string) (business.Resolved, error)
	Get(ctx context.Context, id string) (business.Business, error)
	NumberOverrideFor(ctx context.Context, number string) (business.NumberOverride, error)
	KnowledgeBase(ctx context.Context, businessID string, limit int) ([]business.KnowledgeDoc, error)
}

// CallStore is the durable call record as the live call sees it.
type CallStore interface {
	Create(ctx context.Context, c calls.Call) (calls.Call, bool, error)
	GetBySID(ctx context.Context, sid string) (calls.Call, error)
	ConversationLog(ctx context.Context, sid string) ([]calls.Entry, error)
	MirrorConversation(ctx context.Context, sid string, turn int, log []calls.Entry) (bool, error)
	MarkVoicemail(ctx context.Context, sid, recordingURL string) (bool, error)
	RecentCompleted(ctx context.Context, businessID, callerNumber string, limit int) ([]calls.HistoryItem, error)
}

// Responder generates the agent's reply; it always yields speakable text.
type Responder interface {
	TurnResponse(ctx context.Context, tc ai.TurnContext) ai.TurnResult
}

// Counter tracks live calls per business.
type Counter interface {
	Incr(ctx context.Context, businessID string) (int64, error)
}

type Config struct {
	// BaseURL is the public origin used for provider REST callbacks.
	BaseURL  string
	Voice    telephony.Voice
	MaxTurns int
	// Location is the clock business hours are evaluated in.
	Location *time.Location
}

// Engine is the call-turn state machine.
//
// The provider may hand consecutive callbacks of one call to different
// workers, so the engine only trusts the session store and the call record.
// The session store is a cache: every read falls back to the durable store.
type Engine struct {
	Businesses  Directory
	Calls       CallStore
	Sessions    *session.Calls
	AI          Responder
	Telephony   telephony.Gateway
	ActiveCalls Counter
	Detector    TransferIntentDetector
	Metrics     *metrics.Metrics

	Now func() time.Time

	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Engine{
		Detector: NewKeywordDetector(),
		Now:      time.Now,
		cfg:      cfg,
	}
}

func (e *Engine) script() *telephony.Script {
	return telephony.NewScript(e.cfg.Voice)
}

func (e *Engine) gatherAction(businessID, callSid string, turn int, reprompt bool) string {
	kv := []string{"business_id", businessID, "call_sid", callSid, "turn", strconv.Itoa(turn)}
	if reprompt {
		kv = append(kv, "reprompt", "1")
	}
	return telephony.Path("/webhook/gather-response", kv...)
}

func (e *Engine) gather(businessID, callSid string, turn int, reprompt bool) telephony.GatherOptions {
	opts := telephony.CallGather
	opts.Action = e.gatherAction(businessID, callSid, turn, reprompt)
	// Silence posts back too, so the gather is always the last verb; empty
	// captures are handled by handleSilence.
	opts.ActionOnEmpty = true
	return opts
}

// HandleIncoming answers a new inbound call.
func (e *Engine) HandleIncoming(ctx context.Context, in telephony.InboundCall) Outcome {
	log := logger.ForCall(ctx, in.CallSid)

	resolved, err := e.Businesses.ResolveByNumber(ctx, in.Called)
	if err != nil {
		if !errors.Is(err, business.ErrNotFound) {
			log.Error("resolve business failed", "called", in.Called, "err", err)
		}
		e.Metrics.Turn("unconfigured")
		return Outcome{State: StateClosing, Response: e.script().Say(lineUnconfigured).Hangup().Response()}
	}
	biz := resolved.Business
	log = log.With("business_id", biz.ID)

	call, created, err := e.Calls.Create(ctx, calls.Call{
		ProviderCallSID: in.CallSid,
		BusinessID:      biz.ID,
		CallerNumber:    in.From,
		CalledNumber:    in.Called,
		Direction:       calls.DirectionInbound,
	})
	switch {
	case err != nil:
		log.Error("create call failed", "err", err)
	case created:
		if _, err := e.ActiveCalls.Incr(ctx, biz.ID); err != nil {
			log.Warn("increment active calls failed", "err", err)
		}
		if err := e.Telephony.RegisterStatusCallback(ctx, in.CallSid, e.cfg.BaseURL+"/webhook/call-status"); err != nil {
			log.Warn("register status callback failed", "err", err)
		}
		if err := e.Telephony.StartRecording(ctx, in.CallSid, e.cfg.BaseURL+"/webhook/recording-status"); err != nil {
			log.Warn("start recording failed", "err", err)
		}
		log.Info("call created", "call_id", call.ID)
	default:
		log.Info("duplicate incoming call delivery")
	}

	if !biz.Agent.Hours.IsOpen(e.Now().In(e.cfg.Location)) {
		e.Metrics.Turn("after_hours")
		resp := e.script().
			Say(biz.AfterHoursLine()).
			Say(lineLeaveMessage).
			Record(telephony.VoicemailMaxSeconds, telephony.Path("/webhook/voicemail-complete", "business_id", biz.ID, "call_sid", in.CallSid)).
			Say(lineGoodbye).
			Hangup().
			Response()
		return Outcome{State: StateAfterHours, Response: resp}
	}

	e.initSession(ctx, in, resolved)

	e.Metrics.Turn("greeting")
	resp := e.script().
		Gather(e.gather(biz.ID, in.CallSid, 0, false), resolved.EffectiveGreeting()).
		Response()
	return Outcome{State: StateAwaitingSpeech, Response: resp, Turn: 0}
}

// initSession seeds the per-call cache. Failures only cost latency later.
func (e *Engine) initSession(ctx context.Context, in telephony.InboundCall, r business.Resolved) {
	log := logger.ForCall(ctx, in.CallSid)

	if err := e.Sessions.SaveConversation(ctx, in.CallSid, nil); err != nil {
		log.Warn("session init failed", "err", err)
		return
	}
	hist, err := e.Calls.RecentCompleted(ctx, r.ID, in.From, historyCalls)
	if err != nil {
		log.Warn("caller history lookup failed", "err", err)
	} else if err := e.Sessions.SaveCallerHistory(ctx, in.CallSid, hist); err != nil {
		log.Warn("cache caller history failed", "err", err)
	}
	if err := e.Sessions.SavePersonality(ctx, in.CallSid, r.EffectivePersonality()); err != nil {
		log.Warn("cache personality failed", "err", err)
	}
}

// HandleSpeech processes one speech-capture result.
func (e *Engine) HandleSpeech(ctx context.Context, ev telephony.SpeechEvent) Outcome {
	log := logger.ForCall(ctx, ev.CallSid).With("turn", ev.Turn)

	if ev.Speech == "" {
		return e.handleSilence(ctx, ev)
	}

	claimed, err := e.Sessions.ClaimTurn(ctx, ev.CallSid, ev.Turn)
	if err != nil {
		// Without the session store the durable mirror guard still keeps
		// the transcript ordered.
		log.Warn("turn claim unavailable", "err", err)
		claimed = true
	}
	if !claimed {
		return e.replay(ctx, ev)
	}

	biz, call, err := e.loadBusiness(ctx, ev)
	if err != nil {
		log.Error("load business for turn failed", "business_id", ev.BusinessID, "err", err)
		e.Metrics.Turn("error")
		return e.remember(ctx, ev, Outcome{State: StateClosing, Response: e.script().Say(lineBusinessError).Hangup().Response()})
	}

	conv := e.conversation(ctx, ev.CallSid)
	conv = append(conv, calls.Entry{Role: calls.RoleCaller, Text: ev.Speech})

	if e.Detector.DetectsTransferIntent(ev.Speech) && biz.Agent.TransferNumber != "" {
		conv = append(conv, calls.Entry{Role: calls.RoleAgent, Text: transcriptTransfer})
		e.persist(ctx, ev.CallSid, ev.Turn, conv)
		e.Metrics.Turn("transfer")
		log.Info("caller asked for a human")
		return e.remember(ctx, ev, Outcome{State: StateTransferring, Response: e.transferResponse(biz.Agent.TransferNumber)})
	}

	history := e.callerHistory(ctx, ev.CallSid, biz.ID, &call)
	personality := e.personality(ctx, ev.CallSid, biz, &call)
	tc := ai.TurnContext{
		CallerNumber:        call.CallerNumber,
		History:             history,
		Conversation:        conv,
		Utterance:           ev.Speech,
		FAQ:                 biz.Agent.FAQ,
		KnowledgeBase:       e.knowledge(ctx, biz.ID),
		Services:            biz.Agent.Services,
		Hours:               biz.Agent.Hours.String(),
		TransferNumber:      biz.Agent.TransferNumber,
		RestrictedInfo:      biz.Agent.RestrictedInfo,
		SpecialInstructions: biz.Agent.SpecialInstructions,
		Personality:         personality,
	}
	res := e.AI.TurnResponse(ctx, tc)
	if res.Fallback {
		log.Warn("turn response fell back", "err", res.Err)
	}

	conv = append(conv, calls.Entry{Role: calls.RoleAgent, Text: res.Text})
	e.persist(ctx, ev.CallSid, ev.Turn, conv)

	if ev.Turn >= e.cfg.MaxTurns {
		e.Metrics.Turn("max_turns")
		resp := e.script().Say(res.Text + " " + lineClosing).Hangup().Response()
		return e.remember(ctx, ev, Outcome{State: StateClosing, Response: resp, Turn: ev.Turn})
	}

	if res.Fallback {
		e.Metrics.Turn("fallback")
	} else {
		e.Metrics.Turn("responded")
	}
	next := ev.Turn + 1
	resp := e.script().
		Gather(e.gather(biz.ID, ev.CallSid, next, false), res.Text).
		Response()
	return e.remember(ctx, ev, Outcome{State: StateAwaitingSpeech, Response: resp, Turn: next})
}

// handleSilence re-prompts once per turn; a second empty capture ends the
// exchange.
func (e *Engine) handleSilence(ctx context.Context, ev telephony.SpeechEvent) Outcome {
	if !ev.Reprompt {
		e.Metrics.Turn("reprompt")
		resp := e.script().
			Gather(e.gather(ev.BusinessID, ev.CallSid, ev.Turn, true), lineRepeat).
			Response()
		return Outcome{State: StateAwaitingSpeech, Response: resp, Turn: ev.Turn}
	}

	e.Metrics.Turn("silent")
	biz, _, err := e.loadBusiness(ctx, ev)
	if err == nil && biz.Agent.TransferNumber != "" {
		return Outcome{State: StateTransferring, Response: e.transferResponse(biz.Agent.TransferNumber), Turn: ev.Turn}
	}
	return Outcome{State: StateClosing, Response: e.script().Say(lineClosing).Hangup().Response(), Turn: ev.Turn}
}

// replay answers a duplicate delivery of an already claimed turn without
// touching the transcript.
func (e *Engine) replay(ctx context.Context, ev telephony.SpeechEvent) Outcome {
	e.Metrics.Turn("duplicate")
	var prev Outcome
	found, err := e.Sessions.Decision(ctx, ev.CallSid, ev.Turn, &prev)
	if err == nil && found {
		prev.Replayed = true
		return prev
	}
	logger.ForCall(ctx, ev.CallSid).Info("duplicate turn without stored decision", "turn", ev.Turn)
	next := ev.Turn + 1
	resp := e.script().
		Gather(e.gather(ev.BusinessID, ev.CallSid, next, false), ai.TurnFallback).
		Response()
	return Outcome{State: StateAwaitingSpeech, Response: resp, Turn: next, Replayed: true}
}

func (e *Engine) remember(ctx context.Context, ev telephony.SpeechEvent, out Outcome) Outcome {
	if err := e.Sessions.SaveDecision(ctx, ev.CallSid, ev.Turn, out); err != nil {
		logger.ForCall(ctx, ev.CallSid).Warn("save turn decision failed", "turn", ev.Turn, "err", err)
	}
	return out
}

// loadBusiness resolves the business of a speech event; the call record
// supplies the id when the callback URL lost it.
func (e *Engine) loadBusiness(ctx context.Context, ev telephony.SpeechEvent) (business.Business, calls.Call, error) {
	var call calls.Call
	id := ev.BusinessID
	if id == "" {
		c, err := e.Calls.GetBySID(ctx, ev.CallSid)
		if err != nil {
			return business.Business{}, calls.Call{}, err
		}
		call, id = c, c.BusinessID
	}
	b, err := e.Businesses.Get(ctx, id)
	return b, call, err
}

func (e *Engine) conversation(ctx context.Context, sid string) []calls.Entry {
	conv, found, err := e.Sessions.Conversation(ctx, sid)
	if err == nil && found && len(conv) > 0 {
		return conv
	}
	durable, derr := e.Calls.ConversationLog(ctx, sid)
	if derr != nil && !errors.Is(derr, calls.ErrNotFound) {
		logger.ForCall(ctx, sid).Warn("load durable transcript failed", "err", derr)
	}
	if len(durable) > 0 {
		return durable
	}
	return conv
}

// persist writes the session copy, then the durable mirror that other
// workers and the lifecycle recorder read.
func (e *Engine) persist(ctx context.Context, sid string, turn int, conv []calls.Entry) {
	log := logger.ForCall(ctx, sid)
	if err := e.Sessions.SaveConversation(ctx, sid, conv); err != nil {
		log.Warn("save session transcript failed", "err", err)
	}
	written, err := e.Calls.MirrorConversation(ctx, sid, turn, conv)
	if err != nil {
		log.Error("mirror transcript failed", "turn", turn, "err", err)
		return
	}
	if !written {
		log.Info("stale transcript mirror skipped", "turn", turn)
	}
}

func (e *Engine) callRecord(ctx context.Context, sid string, call *calls.Call) bool {
	if call.ID != "" {
		return true
	}
	c, err := e.Calls.GetBySID(ctx, sid)
	if err != nil {
		logger.ForCall(ctx, sid).Warn("load call record failed", "err", err)
		return false
	}
	*call = c
	return true
}

func (e *Engine) callerHistory(ctx context.Context, sid, businessID string, call *calls.Call) []calls.HistoryItem {
	hist, found, err := e.Sessions.CallerHistory(ctx, sid)
	if err == nil && found {
		if call.CallerNumber == "" {
			e.callRecord(ctx, sid, call)
		}
		return hist
	}
	if !e.callRecord(ctx, sid, call) || call.CallerNumber == "" {
		return nil
	}
	hist, err = e.Calls.RecentCompleted(ctx, businessID, call.CallerNumber, historyCalls)
	if err != nil {
		logger.ForCall(ctx, sid).Warn("caller history lookup failed", "err", err)
		return nil
	}
	if err := e.Sessions.SaveCallerHistory(ctx, sid, hist); err != nil {
		logger.ForCall(ctx, sid).Warn("cache caller history failed", "err", err)
	}
	return hist
}

func (e *Engine) knowledge(ctx context.Context, businessID string) []business.KnowledgeDoc {
	docs, err := e.Businesses.KnowledgeBase(ctx, businessID, knowledgeCap)
	if err != nil {
		logger.From(ctx).Warn("knowledge base lookup failed", "business_id", businessID, "err", err)
		return nil
	}
	return docs
}

// personality prefers the called number's override over the business default.
func (e *Engine) personality(ctx context.Context, sid string, biz business.Business, call *calls.Call) string {
	p, found, err := e.Sessions.Personality(ctx, sid)
	if err == nil && found && p != "" {
		return p
	}
	if e.callRecord(ctx, sid, call) && call.CalledNumber != "" {
		n, err := e.Businesses.NumberOverrideFor(ctx, call.CalledNumber)
		if err != nil {
			logger.ForCall(ctx, sid).Warn("number override lookup failed", "err", err)
		}
		if p := strings.TrimSpace(n.Personality); p != "" {
			return p
		}
	}
	return strings.TrimSpace(biz.Agent.Personality)
}

func (e *Engine) transferResponse(number string) telephony.Response {
	return e.script().
		Say(lineTransfer).
		Dial(number, telephony.DialTimeoutSeconds).
		Say(lineNobodyAvailable).
		Hangup().
		Response()
}

// HandleTransfer serves the transfer redirect issued when the greeting
// went unanswered.
func (e *Engine) HandleTransfer(ctx context.Context, req telephony.TransferRequest) Outcome {
	biz, _, err := e.loadBusiness(ctx, telephony.SpeechEvent{CallSid: req.CallSid, BusinessID: req.BusinessID})
	if err != nil {
		logger.ForCall(ctx, req.CallSid).Warn("load business for transfer failed", "err", err)
	}
	if err == nil && biz.Agent.TransferNumber != "" {
		e.Metrics.Turn("transfer")
		return Outcome{State: StateTransferring, Response: e.transferResponse(biz.Agent.TransferNumber)}
	}
	e.Metrics.Turn("no_transfer")
	return Outcome{State: StateClosing, Response: e.script().Say(lineNoTransfer).Hangup().Response()}
}

// HandleVoicemailComplete closes an after-hours recording.
func (e *Engine) HandleVoicemailComplete(ctx context.Context, ev telephony.RecordingEvent) Outcome {
	log := logger.ForCall(ctx, ev.CallSid)
	marked, err := e.Calls.MarkVoicemail(ctx, ev.CallSid, ev.RecordingURL)
	switch {
	case err != nil:
		log.Error("mark voicemail failed", "err", err)
	case !marked:
		log.Info("voicemail ignored for call no longer in progress")
	default:
		log.Info("voicemail recorded", "recording_url", ev.RecordingURL)
	}
	e.Metrics.Turn("voicemail")
	return Outcome{State: StateVoicemail, Response: e.script().Say(lineGoodbye).Hangup().Response()}
}

// Fallback is served by the provider when a primary webhook failed.
func (e *Engine) Fallback(ctx context.Context, callSid string) Outcome {
	logger.ForCall(ctx, callSid).Warn("provider fallback invoked")
	e.Metrics.Turn("fallback_error")
	return Outcome{State: StateClosing, Response: e.script().Say(lineTechnical).Hangup().Response()}
}
