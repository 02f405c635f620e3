// Package lifecycle turns the provider's terminal call callbacks into
// durable records: final status, analysis, tickets, usage and alerts.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voicebot/internal/ai"
	"voicebot/internal/business"
	"voicebot/internal/calls"
	"voicebot/internal/events"
	"voicebot/internal/metrics"
	"voicebot/internal/session"
	"voicebot/internal/telephony"
	"voicebot/internal/tickets"
	"voicebot/internal/usage"
	"voicebot/pkg/logger"
)

// CallStore is the part of the call repository the recorder writes.
type CallStore interface {
	Finalize(ctx context.Context, sid string, status calls.Status, durationSeconds int, at time.Time) (calls.Call, bool, error)
	ConversationLog(ctx context.Context, sid string) ([]calls.Entry, error)
	SaveAnalysis(ctx context.Context, callID string, a calls.Analysis, log []calls.Entry, recordingURL string) error
}

type Businesses interface {
	Get(ctx context.Context, id string) (business.Business, error)
}

type Analyzer interface {
	AnalyzeCall(ctx context.Context, in ai.AnalysisInput) ai.AnalysisResult
}

type TicketStore interface {
	Create(ctx context.Context, t tickets.Ticket) (tickets.Ticket, bool, error)
}

type UsageTracker interface {
	Accrue(ctx context.Context, businessID string, limit int, seconds int, at time.Time) (usage.Accrual, error)
}

type Counter interface {
	Decr(ctx context.Context, businessID string) (int64, error)
}

// Recorder finalizes each call exactly once. Only the callback that wins the
// finalization runs side effects, so duplicate or late terminal callbacks
// never double-accrue minutes or double-decrement the live counter.
type Recorder struct {
	Calls       CallStore
	Businesses  Businesses
	Sessions    *session.Calls
	AI          Analyzer
	Tickets     TicketStore
	Usage       UsageTracker
	ActiveCalls Counter
	Telephony   telephony.Gateway
	Events      *events.Emitter
	Metrics     *metrics.Metrics

	Now func() time.Time

	wg sync.WaitGroup
}

func NewRecorder() *Recorder {
	return &Recorder{Now: time.Now}
}

// Wait blocks until background analyses are done.
func (r *Recorder) Wait() { r.wg.Wait() }

// HandleStatus applies a provider status callback. Non-terminal statuses are
// ignored. It reports whether this callback finalized the call.
func (r *Recorder) HandleStatus(ctx context.Context, ev telephony.StatusEvent) bool {
	status, terminal := calls.ProviderTerminalStatus(ev.CallStatus)
	if !terminal {
		return false
	}
	return r.finalize(ctx, ev.CallSid, status, ev.DurationSeconds)
}

// Expire finalizes a call whose terminal callback never arrived.
func (r *Recorder) Expire(ctx context.Context, sid string) bool {
	return r.finalize(ctx, sid, calls.StatusMissed, 0)
}

func (r *Recorder) finalize(ctx context.Context, sid string, status calls.Status, seconds int) bool {
	log := logger.ForCall(ctx, sid)
	now := r.Now().UTC()

	call, won, err := r.Calls.Finalize(ctx, sid, status, seconds, now)
	if err != nil {
		log.Error("finalize call failed", "status", status, "err", err)
		return false
	}
	if !won {
		log.Debug("duplicate terminal status ignored", "status", status)
		return false
	}
	log = log.With("call_id", call.ID, "business_id", call.BusinessID)
	r.Metrics.Finalized(string(call.Status))
	log.Info("call finalized", "status", call.Status, "duration_seconds", seconds)

	if _, err := r.ActiveCalls.Decr(ctx, call.BusinessID); err != nil {
		log.Warn("decrement active calls failed", "err", err)
	}

	biz, err := r.Businesses.Get(ctx, call.BusinessID)
	known := err == nil
	if !known {
		log.Warn("load business for finalization failed", "err", err)
		biz = business.Business{ID: call.BusinessID}
	}

	if status != calls.StatusCompleted {
		r.completed(ctx, call, events.CallCompleted{})
		return true
	}

	minutes := r.accrue(ctx, log, biz, known, seconds, now)

	bg := logger.With(context.WithoutCancel(ctx), log)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.enrich(bg, call, biz, minutes)
	}()
	return true
}

// accrue adds the call to the month's usage and alerts the owner once per
// newly crossed threshold. When the business could not be loaded the tier is
// unknown: the minutes still count against the stored limit, and the alerts
// wait for the next call that can reach the owner.
func (r *Recorder) accrue(ctx context.Context, log *slog.Logger, biz business.Business, known bool, seconds int, at time.Time) float64 {
	limit := 0
	if known {
		limit = biz.Tier.MonthlyMinutes()
	}
	acc, err := r.Usage.Accrue(ctx, biz.ID, limit, seconds, at)
	if err != nil {
		log.Error("usage accrual failed", "err", err)
	}
	for _, th := range acc.Crossed {
		r.Metrics.UsageAlert(th)
		log.Info("usage threshold crossed", "threshold", th, "minutes_used", acc.Record.MinutesUsed, "limit", acc.Record.MinutesLimit)
		if biz.OwnerPhone != "" {
			if err := r.Telephony.SendSMS(ctx, biz.OwnerPhone, usage.AlertText(biz.Name, th)); err != nil {
				log.Warn("send usage alert failed", "threshold", th, "err", err)
			}
		}
		r.Events.Emit(ctx, events.TypeUsageThresholdCrossed, biz.ID, events.UsageThresholdCrossed{
			BusinessID:  biz.ID,
			Month:       acc.Record.Month,
			Threshold:   th,
			MinutesUsed: acc.Record.MinutesUsed,
			Limit:       acc.Record.MinutesLimit,
		})
	}
	return acc.Minutes
}

// transcript prefers the session mirror, then the durable one.
func (r *Recorder) transcript(ctx context.Context, call calls.Call) []calls.Entry {
	if conv, found, err := r.Sessions.Conversation(ctx, call.ProviderCallSID); err == nil && found && len(conv) > 0 {
		return conv
	}
	if len(call.ConversationLog) > 0 {
		return call.ConversationLog
	}
	conv, err := r.Calls.ConversationLog(ctx, call.ProviderCallSID)
	if err != nil {
		logger.From(ctx).Warn("load durable transcript failed", "err", err)
	}
	return conv
}

func (r *Recorder) enrich(ctx context.Context, call calls.Call, biz business.Business, minutes float64) {
	log := logger.From(ctx)

	conv := r.transcript(ctx, call)
	recording := call.RecordingURL
	if recording == "" {
		url, err := r.Telephony.LatestRecordingURL(ctx, call.ProviderCallSID)
		if err != nil {
			log.Warn("look up recording failed", "err", err)
		}
		recording = url
	}

	text := ai.FormatTranscript(conv)
	res := r.AI.AnalyzeCall(ctx, ai.AnalysisInput{
		RecordingURL: recording,
		Transcript:   text,
		BusinessName: biz.Name,
		BusinessType: biz.Type,
	})
	if res.Err != nil {
		log.Warn("call analysis failed", "fallback", res.Fallback, "err", res.Err)
	}

	summary := events.CallCompleted{Minutes: minutes}
	if !res.Skipped {
		a := res.Analysis
		if a.Transcript == "" {
			a.Transcript = text
		}
		if err := r.Calls.SaveAnalysis(ctx, call.ID, toRecord(a), conv, recording); err != nil {
			log.Error("save analysis failed", "err", err)
		}
		summary.Category = a.Category
		summary.Sentiment = a.Sentiment
		summary.Analyzed = !res.Fallback
		if !res.Fallback && a.ShouldCreateTicket && a.TicketData != nil {
			r.openTicket(ctx, call, a)
		}
	}
	r.completed(ctx, call, summary)
}

func (r *Recorder) openTicket(ctx context.Context, call calls.Call, a ai.CallAnalysis) {
	td := a.TicketData
	name := td.CallerName
	if name == "" {
		name = a.CallerName
	}
	t, created, err := r.Tickets.Create(ctx, tickets.Ticket{
		BusinessID:   call.BusinessID,
		CallID:       call.ID,
		Type:         td.Type,
		Priority:     tickets.Priority(td.Priority),
		Subject:      td.Subject,
		Description:  td.Description,
		CallerName:   name,
		CallerNumber: call.CallerNumber,
	})
	if err != nil {
		logger.From(ctx).Error("create ticket failed", "err", err)
		return
	}
	if !created {
		return
	}
	logger.From(ctx).Info("ticket created", "ticket_id", t.ID, "priority", t.Priority)
	r.Events.Emit(ctx, events.TypeTicketCreated, call.ProviderCallSID, events.TicketCreated{
		TicketID:   t.ID,
		BusinessID: t.BusinessID,
		CallID:     t.CallID,
		Priority:   string(t.Priority),
		Subject:    t.Subject,
	})
}

// completed publishes the final call event and drops the session.
func (r *Recorder) completed(ctx context.Context, call calls.Call, ev events.CallCompleted) {
	ev.CallID = call.ID
	ev.BusinessID = call.BusinessID
	ev.CallSid = call.ProviderCallSID
	ev.Status = string(call.Status)
	ev.DurationSeconds = call.DurationSeconds
	r.Events.Emit(ctx, events.TypeCallCompleted, call.ProviderCallSID, ev)

	if err := r.Sessions.Forget(ctx, call.ProviderCallSID); err != nil {
		logger.From(ctx).Debug("forget call session failed", "err", err)
	}
}

func toRecord(a ai.CallAnalysis) calls.Analysis {
	return calls.Analysis{
		Transcript:   a.Transcript,
		Summary:      a.Summary,
		Category:     a.Category,
		Sentiment:    a.Sentiment,
		CallerName:   a.CallerName,
		CallerIntent: a.CallerIntent,
		Resolution:   a.Resolution,
		ActionItems:  a.ActionItems,
	}
}
