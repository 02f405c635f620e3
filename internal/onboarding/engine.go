package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"voicebot/internal/ai"
	"voicebot/internal/business"
	"voicebot/internal/calls"
	"voicebot/internal/events"
	"voicebot/internal/session"
	"voicebot/internal/telephony"
	"voicebot/pkg/logger"
)

var ErrNoOwnerPhone = errors.New("onboarding: business owner has no phone number")

const (
	lineWelcome    = "Hello! I'm going to ask you a few questions to set up your AI receptionist. Let's get started!"
	lineNoAnswer   = "I didn't hear a response. Let me move to the next question."
	lineSetupError = "Sorry, there was a setup error. We'll call you back."
	lineComplete   = "That's all the questions I have. Thank you! Your AI receptionist is being configured now. We'll send you a text when it's ready. Goodbye!"

	readyTextFmt = "Your AI receptionist for %s is configured and ready for review."
)

type Store interface {
	Create(ctx context.Context, businessID string, questions []ai.Question) (Interview, error)
	Get(ctx context.Context, id string) (Interview, error)
	MarkInProgress(ctx context.Context, id, callSid string) error
	RecordAnswer(ctx context.Context, id, field, answer string) (bool, error)
	Complete(ctx context.Context, id string, at time.Time) (Interview, bool, error)
}

type Businesses interface {
	Get(ctx context.Context, id string) (business.Business, error)
	ApplyAgentConfig(ctx context.Context, businessID string, cfg business.AgentConfig) error
	SetStatus(ctx context.Context, businessID string, status business.Status) error
}

// Generator is the part of the AI gateway the interview needs. Both
// operations return usable fallbacks on failure.
type Generator interface {
	OnboardingQuestions(ctx context.Context, businessName, businessType string) ai.QuestionsResult
	SynthesizeAgentConfig(ctx context.Context, businessName, businessType string, answers map[string]string) ai.ConfigResult
}

type Config struct {
	BaseURL string
	Voice   telephony.Voice
}

// Engine walks a fixed question list over an outbound call, then turns the
// answers into an agent configuration.
type Engine struct {
	Interviews Store
	Businesses Businesses
	Sessions   *session.Interviews
	AI         Generator
	Telephony  telephony.Gateway
	Events     *events.Emitter

	Now func() time.Time

	cfg Config
	wg  sync.WaitGroup
}

func NewEngine(cfg Config) *Engine {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Engine{Now: time.Now, cfg: cfg}
}

// Wait blocks until background finalizations are done.
func (e *Engine) Wait() { e.wg.Wait() }

// Start generates the questions, records the interview and calls the
// business owner.
func (e *Engine) Start(ctx context.Context, businessID string) (Interview, error) {
	log := logger.From(ctx).With("business_id", businessID)

	biz, err := e.Businesses.Get(ctx, businessID)
	if err != nil {
		return Interview{}, err
	}
	if strings.TrimSpace(biz.OwnerPhone) == "" {
		return Interview{}, ErrNoOwnerPhone
	}

	qs := e.AI.OnboardingQuestions(ctx, biz.Name, biz.Type)
	if qs.Fallback {
		log.Warn("using fallback onboarding questions", "err", qs.Err)
	}

	iv, err := e.Interviews.Create(ctx, biz.ID, qs.Questions)
	if err != nil {
		return Interview{}, fmt.Errorf("onboarding: create interview: %w", err)
	}
	if err := e.Sessions.SaveQuestions(ctx, iv.ID, iv.Questions); err != nil {
		log.Warn("cache onboarding questions failed", "onboarding_id", iv.ID, "err", err)
	}

	sid, err := e.Telephony.InitiateCall(ctx, telephony.OutboundCall{
		To:             biz.OwnerPhone,
		URL:            e.cfg.BaseURL + telephony.Path("/webhook/onboarding-start", "business_id", biz.ID, "onboarding_id", iv.ID),
		StatusCallback: e.cfg.BaseURL + telephony.Path("/webhook/onboarding-status", "onboarding_id", iv.ID),
		Record:         true,
	})
	if err != nil {
		return iv, fmt.Errorf("onboarding: place call: %w", err)
	}
	if err := e.Interviews.MarkInProgress(ctx, iv.ID, sid); err != nil {
		log.Warn("mark interview in progress failed", "onboarding_id", iv.ID, "err", err)
	}
	if err := e.Businesses.SetStatus(ctx, biz.ID, business.StatusOnboarding); err != nil {
		log.Warn("set business onboarding status failed", "err", err)
	}
	iv.ProviderCallSID = sid
	iv.Status = StatusInProgress
	log.Info("onboarding call placed", "onboarding_id", iv.ID, "call_sid", sid, "questions", len(iv.Questions))
	return iv, nil
}

// questions reads the cached list, falling back to the interview record.
func (e *Engine) questions(ctx context.Context, id string) []ai.Question {
	var qs []ai.Question
	found, err := e.Sessions.Questions(ctx, id, &qs)
	if err == nil && found && len(qs) > 0 {
		return qs
	}
	iv, err := e.Interviews.Get(ctx, id)
	if err != nil {
		logger.From(ctx).Warn("load interview failed", "onboarding_id", id, "err", err)
		return nil
	}
	if err := e.Sessions.SaveQuestions(ctx, id, iv.Questions); err != nil {
		logger.From(ctx).Debug("re-cache onboarding questions failed", "onboarding_id", id, "err", err)
	}
	return iv.Questions
}

func (e *Engine) script() *telephony.Script {
	return telephony.NewScript(e.cfg.Voice)
}

// ask appends question i: listen for an answer, otherwise move on.
func (e *Engine) ask(s *telephony.Script, ev telephony.OnboardingEvent, qs []ai.Question, i int) *telephony.Script {
	opts := telephony.OnboardingGather
	opts.Action = telephony.Path("/webhook/onboarding-answer",
		"business_id", ev.BusinessID, "onboarding_id", ev.InterviewID, "q", strconv.Itoa(i))
	return s.
		Gather(opts, qs[i].Question).
		Say(lineNoAnswer).
		Redirect(telephony.Path("/webhook/onboarding-next",
			"business_id", ev.BusinessID, "onboarding_id", ev.InterviewID, "q", strconv.Itoa(i+1)))
}

func (e *Engine) setupError() telephony.Response {
	return e.script().Say(lineSetupError).Hangup().Response()
}

func (e *Engine) completed() telephony.Response {
	return e.script().Say(lineComplete).Hangup().Response()
}

// HandleStart welcomes the owner and asks the first question.
func (e *Engine) HandleStart(ctx context.Context, ev telephony.OnboardingEvent) telephony.Response {
	qs := e.questions(ctx, ev.InterviewID)
	if len(qs) == 0 {
		return e.setupError()
	}
	return e.ask(e.script().Say(lineWelcome).Pause(1), ev, qs, 0).Response()
}

// HandleAnswer stores the answer to question ev.Question and asks the next.
func (e *Engine) HandleAnswer(ctx context.Context, ev telephony.OnboardingEvent) telephony.Response {
	log := logger.From(ctx).With("onboarding_id", ev.InterviewID, "q", ev.Question)

	qs := e.questions(ctx, ev.InterviewID)
	if len(qs) == 0 {
		return e.setupError()
	}
	if field := FieldFor(qs, ev.Question); field != "" && ev.Speech != "" {
		if _, err := e.Sessions.RecordAnswer(ctx, ev.InterviewID, field, ev.Speech); err != nil {
			log.Warn("cache onboarding answer failed", "err", err)
		}
		stored, err := e.Interviews.RecordAnswer(ctx, ev.InterviewID, field, ev.Speech)
		switch {
		case err != nil:
			log.Error("persist onboarding answer failed", "err", err)
		case !stored:
			log.Info("onboarding answer already recorded", "field", field)
		}
	}

	next := ev.Question + 1
	if next < len(qs) {
		return e.ask(e.script(), ev, qs, next).Response()
	}
	e.finish(ctx, ev.InterviewID)
	return e.completed()
}

// HandleNext asks question ev.Question after an unanswered one.
func (e *Engine) HandleNext(ctx context.Context, ev telephony.OnboardingEvent) telephony.Response {
	qs := e.questions(ctx, ev.InterviewID)
	if len(qs) == 0 {
		return e.setupError()
	}
	if ev.Question < len(qs) {
		return e.ask(e.script(), ev, qs, ev.Question).Response()
	}
	e.finish(ctx, ev.InterviewID)
	return e.completed()
}

// HandleStatus finalizes an interview whose call ended before the last
// question, using whatever answers were collected.
func (e *Engine) HandleStatus(ctx context.Context, ev telephony.OnboardingEvent) {
	if _, terminal := calls.ProviderTerminalStatus(ev.CallStatus); !terminal {
		return
	}
	e.finish(ctx, ev.InterviewID)
}

// finish claims completion and configures the business in the background
// so the provider gets its response without waiting on synthesis.
func (e *Engine) finish(ctx context.Context, id string) {
	log := logger.From(ctx).With("onboarding_id", id)

	iv, won, err := e.Interviews.Complete(ctx, id, e.Now().UTC())
	if err != nil {
		log.Error("complete interview failed", "err", err)
		return
	}
	if !won {
		return
	}

	bg := logger.With(context.WithoutCancel(ctx), log)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.configure(bg, iv)
	}()
}

func (e *Engine) configure(ctx context.Context, iv Interview) {
	log := logger.From(ctx).With("business_id", iv.BusinessID)

	answers := iv.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	cached, err := e.Sessions.Answers(ctx, iv.ID)
	if err != nil {
		log.Warn("read cached onboarding answers failed", "err", err)
	}
	for k, v := range cached {
		if _, ok := answers[k]; !ok {
			answers[k] = v
		}
	}

	// Completion is already claimed, so a failed lookup still configures the
	// business from the answers alone.
	biz, err := e.Businesses.Get(ctx, iv.BusinessID)
	if err != nil {
		log.Error("load business for onboarding failed", "err", err)
		biz = business.Business{ID: iv.BusinessID}
	}

	res := e.AI.SynthesizeAgentConfig(ctx, biz.Name, biz.Type, answers)
	if res.Fallback {
		log.Warn("using fallback agent config", "err", res.Err)
	}
	if err := e.Businesses.ApplyAgentConfig(ctx, biz.ID, res.Config); err != nil {
		log.Error("apply agent config failed", "err", err)
		if err := e.Businesses.SetStatus(ctx, biz.ID, business.StatusReadyForReview); err != nil {
			log.Error("set ready_for_review failed", "err", err)
		}
	}

	if biz.OwnerPhone != "" {
		if err := e.Telephony.SendSMS(ctx, biz.OwnerPhone, fmt.Sprintf(readyTextFmt, biz.Name)); err != nil {
			log.Warn("send onboarding ready sms failed", "err", err)
		}
	}
	if err := e.Sessions.Forget(ctx, iv.ID); err != nil {
		log.Debug("forget onboarding session failed", "err", err)
	}

	e.Events.Emit(ctx, events.TypeOnboardingCompleted, iv.ID, events.OnboardingCompleted{
		InterviewID: iv.ID,
		BusinessID:  biz.ID,
		Answered:    len(answers),
		Fallback:    res.Fallback,
	})
	log.Info("onboarding completed", "answers", len(answers), "fallback_config", res.Fallback)
}
