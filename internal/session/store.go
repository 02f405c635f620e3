// Package session is the cross-worker working memory of live calls and
// onboarding interviews. Everything here is a cache over the durable store:
// entries expire on their own and callers must cope with a miss.
package session

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var ErrUnavailable = errors.New("session: store unavailable")

// KV is the minimal key/value surface the engines need. Implementations must
// be safe to share between goroutines and, for Redis, between processes.
type KV interface {
	// GetJSON decodes the value at key into dst; found is false on a miss.
	GetJSON(ctx context.Context, key string, dst any) (found bool, err error)
	// SetJSON stores v at key with a ttl, last writer wins.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	// Claim sets key only if absent; claimed is false if someone else holds it.
	Claim(ctx context.Context, key string, ttl time.Duration) (claimed bool, err error)
	// HSetNX sets field on the hash at key only if the field is absent, and
	// refreshes the hash ttl.
	HSetNX(ctx context.Context, key, field, value string, ttl time.Duration) (set bool, err error)
	// HGetAll returns every field of the hash at key; a miss is an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Delete(ctx context.Context, keys ...string) error
}

func conversationKey(callSid string) string  { return "conv:" + callSid }
func callerHistoryKey(callSid string) string { return "caller_hist:" + callSid }
func personalityKey(callSid string) string   { return "num_personality:" + callSid }
func turnClaimKey(callSid string, turn int) string {
	return "turn:" + callSid + ":" + strconv.Itoa(turn)
}
func decisionKey(callSid string, turn int) string {
	return "decision:" + callSid + ":" + strconv.Itoa(turn)
}

// QuestionsKey holds an interview's cached question list.
func QuestionsKey(interviewID string) string { return "onboarding_q:" + interviewID }

// AnswersKey holds an interview's answer accumulator (hash: field -> answer).
func AnswersKey(interviewID string) string { return "onboarding_a:" + interviewID }
