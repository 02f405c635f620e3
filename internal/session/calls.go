package session

import (
	"context"
	"time"

	"voicebot/internal/calls"
)

// Calls is the typed view of a live call's session entries. All entries
// share one idle ttl which every write refreshes.
type Calls struct {
	kv  KV
	ttl time.Duration
}

func NewCalls(kv KV, ttl time.Duration) *Calls {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Calls{kv: kv, ttl: ttl}
}

// Conversation returns the cached transcript; found is false on a miss, in
// which case the durable mirror is authoritative.
func (c *Calls) Conversation(ctx context.Context, callSid string) ([]calls.Entry, bool, error) {
	var log []calls.Entry
	found, err := c.kv.GetJSON(ctx, conversationKey(callSid), &log)
	return log, found, err
}

func (c *Calls) SaveConversation(ctx context.Context, callSid string, log []calls.Entry) error {
	if log == nil {
		log = []calls.Entry{}
	}
	return c.kv.SetJSON(ctx, conversationKey(callSid), log, c.ttl)
}

func (c *Calls) CallerHistory(ctx context.Context, callSid string) ([]calls.HistoryItem, bool, error) {
	var hist []calls.HistoryItem
	found, err := c.kv.GetJSON(ctx, callerHistoryKey(callSid), &hist)
	return hist, found, err
}

func (c *Calls) SaveCallerHistory(ctx context.Context, callSid string, hist []calls.HistoryItem) error {
	if hist == nil {
		hist = []calls.HistoryItem{}
	}
	return c.kv.SetJSON(ctx, callerHistoryKey(callSid), hist, c.ttl)
}

// Personality is the number-level personality override resolved at answer time.
func (c *Calls) Personality(ctx context.Context, callSid string) (string, bool, error) {
	var p string
	found, err := c.kv.GetJSON(ctx, personalityKey(callSid), &p)
	return p, found, err
}

func (c *Calls) SavePersonality(ctx context.Context, callSid, personality string) error {
	return c.kv.SetJSON(ctx, personalityKey(callSid), personality, c.ttl)
}

// ClaimTurn marks (callSid, turn) as being handled. Only the first delivery
// of a speech event for a turn gets true.
func (c *Calls) ClaimTurn(ctx context.Context, callSid string, turn int) (bool, error) {
	return c.kv.Claim(ctx, turnClaimKey(callSid, turn), c.ttl)
}

// SaveDecision stores the channel response produced for a turn so a
// duplicate delivery can replay it verbatim.
func (c *Calls) SaveDecision(ctx context.Context, callSid string, turn int, decision any) error {
	return c.kv.SetJSON(ctx, decisionKey(callSid, turn), decision, c.ttl)
}

func (c *Calls) Decision(ctx context.Context, callSid string, turn int, dst any) (bool, error) {
	return c.kv.GetJSON(ctx, decisionKey(callSid, turn), dst)
}

// Forget drops the per-call entries once the call is finalized. Turn claims
// and decisions are left to expire.
func (c *Calls) Forget(ctx context.Context, callSid string) error {
	return c.kv.Delete(ctx, conversationKey(callSid), callerHistoryKey(callSid), personalityKey(callSid))
}

// Interviews is the typed view of onboarding interview entries.
type Interviews struct {
	kv  KV
	ttl time.Duration
}

func NewInterviews(kv KV, ttl time.Duration) *Interviews {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Interviews{kv: kv, ttl: ttl}
}

// Questions decodes the cached question list into dst.
func (i *Interviews) Questions(ctx context.Context, interviewID string, dst any) (bool, error) {
	return i.kv.GetJSON(ctx, QuestionsKey(interviewID), dst)
}

func (i *Interviews) SaveQuestions(ctx context.Context, interviewID string, questions any) error {
	return i.kv.SetJSON(ctx, QuestionsKey(interviewID), questions, i.ttl)
}

// RecordAnswer stores an answer unless one is already present for field.
func (i *Interviews) RecordAnswer(ctx context.Context, interviewID, field, answer string) (bool, error) {
	return i.kv.HSetNX(ctx, AnswersKey(interviewID), field, answer, i.ttl)
}

func (i *Interviews) Answers(ctx context.Context, interviewID string) (map[string]string, error) {
	return i.kv.HGetAll(ctx, AnswersKey(interviewID))
}

func (i *Interviews) Forget(ctx context.Context, interviewID string) error {
	return i.kv.Delete(ctx, QuestionsKey(interviewID), AnswersKey(interviewID))
}
