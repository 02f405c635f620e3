package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"voicebot/internal/calls"
)

func newRedisKV(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisStore(rdb)
}

// kvFactories runs the same contract against both implementations.
func kvFactories(t *testing.T) map[string]func() KV {
	return map[string]func() KV{
		"redis": func() KV {
			_, kv := newRedisKV(t)
			return kv
		},
		"memory": func() KV { return NewMemoryStore() },
	}
}

func TestKV_JSONRoundTripAndMiss(t *testing.T) {
	for name, mk := range kvFactories(t) {
		t.Run(name, func(t *testing.T) {
			kv := mk()
			ctx := context.Background()

			var got []calls.Entry
			found, err := kv.GetJSON(ctx, "conv:CA1", &got)
			if err != nil || found {
				t.Fatalf("expected clean miss, found=%v err=%v", found, err)
			}

			want := []calls.Entry{{Role: calls.RoleCaller, Text: "hi"}, {Role: calls.RoleAgent, Text: "hello"}}
			if err := kv.SetJSON(ctx, "conv:CA1", want, time.Minute); err != nil {
				t.Fatalf("set: %v", err)
			}
			found, err = kv.GetJSON(ctx, "conv:CA1", &got)
			if err != nil || !found {
				t.Fatalf("expected hit, found=%v err=%v", found, err)
			}
			if len(got) != 2 || got[1].Text != "hello" {
				t.Fatalf("unexpected value %+v", got)
			}
		})
	}
}

func TestKV_ClaimIsExclusive(t *testing.T) {
	for name, mk := range kvFactories(t) {
		t.Run(name, func(t *testing.T) {
			kv := mk()
			ctx := context.Background()

			var wins int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := kv.Claim(ctx, "turn:CA1:3", time.Minute)
					if err != nil {
						t.Errorf("claim: %v", err)
						return
					}
					if ok {
						atomic.AddInt32(&wins, 1)
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("expected exactly one winner, got %d", wins)
			}
		})
	}
}

func TestKV_HSetNXKeepsFirstAnswer(t *testing.T) {
	for name, mk := range kvFactories(t) {
		t.Run(name, func(t *testing.T) {
			kv := mk()
			ctx := context.Background()

			set, err := kv.HSetNX(ctx, AnswersKey("ob1"), "greeting", "first", time.Minute)
			if err != nil || !set {
				t.Fatalf("expected first set, set=%v err=%v", set, err)
			}
			set, err = kv.HSetNX(ctx, AnswersKey("ob1"), "greeting", "second", time.Minute)
			if err != nil || set {
				t.Fatalf("expected second set to be refused, set=%v err=%v", set, err)
			}
			all, err := kv.HGetAll(ctx, AnswersKey("ob1"))
			if err != nil {
				t.Fatalf("hgetall: %v", err)
			}
			if all["greeting"] != "first" {
				t.Fatalf("answer overwritten: %v", all)
			}

			empty, err := kv.HGetAll(ctx, AnswersKey("missing"))
			if err != nil || len(empty) != 0 {
				t.Fatalf("expected empty map, got %v err=%v", empty, err)
			}
		})
	}
}

func TestRedisStore_EntriesExpire(t *testing.T) {
	mr, kv := newRedisKV(t)
	ctx := context.Background()

	if err := kv.SetJSON(ctx, "conv:CA1", []string{"x"}, 30*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := kv.HSetNX(ctx, AnswersKey("ob1"), "hours", "9-5", time.Hour); err != nil {
		t.Fatalf("hsetnx: %v", err)
	}
	if ttl := mr.TTL(AnswersKey("ob1")); ttl != time.Hour {
		t.Fatalf("expected answers ttl 1h, got %s", ttl)
	}

	mr.FastForward(31 * time.Minute)
	var v []string
	found, err := kv.GetJSON(ctx, "conv:CA1", &v)
	if err != nil || found {
		t.Fatalf("expected expiry, found=%v err=%v", found, err)
	}
}

func TestRedisStore_OutageIsUnavailable(t *testing.T) {
	mr, kv := newRedisKV(t)
	mr.Close()

	_, err := kv.Claim(context.Background(), "turn:CA1:0", time.Minute)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	kv := NewMemoryStore()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	kv.SetClock(func() time.Time { return now })
	ctx := context.Background()

	if ok, _ := kv.Claim(ctx, "turn:CA1:0", time.Minute); !ok {
		t.Fatalf("expected claim")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := kv.Claim(ctx, "turn:CA1:0", time.Minute); !ok {
		t.Fatalf("expected claim after expiry")
	}
}

func TestCalls_SessionLifecycle(t *testing.T) {
	_, kv := newRedisKV(t)
	s := NewCalls(kv, 30*time.Minute)
	ctx := context.Background()

	if _, found, _ := s.Conversation(ctx, "CA1"); found {
		t.Fatalf("expected miss before first turn")
	}
	if err := s.SaveConversation(ctx, "CA1", nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	log, found, err := s.Conversation(ctx, "CA1")
	if err != nil || !found || len(log) != 0 {
		t.Fatalf("expected empty transcript hit, got %v found=%v err=%v", log, found, err)
	}

	if err := s.SavePersonality(ctx, "CA1", "Be brief."); err != nil {
		t.Fatalf("personality: %v", err)
	}
	p, found, _ := s.Personality(ctx, "CA1")
	if !found || p != "Be brief." {
		t.Fatalf("unexpected personality %q", p)
	}

	ok, _ := s.ClaimTurn(ctx, "CA1", 0)
	dup, _ := s.ClaimTurn(ctx, "CA1", 0)
	next, _ := s.ClaimTurn(ctx, "CA1", 1)
	if !ok || dup || !next {
		t.Fatalf("unexpected claims: first=%v dup=%v next=%v", ok, dup, next)
	}

	type decision struct{ Say string }
	if err := s.SaveDecision(ctx, "CA1", 0, decision{Say: "hi"}); err != nil {
		t.Fatalf("decision: %v", err)
	}
	var d decision
	if found, _ := s.Decision(ctx, "CA1", 0, &d); !found || d.Say != "hi" {
		t.Fatalf("unexpected decision %+v", d)
	}

	if err := s.Forget(ctx, "CA1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, found, _ := s.Conversation(ctx, "CA1"); found {
		t.Fatalf("expected conversation dropped")
	}
}
