package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebot/pkg/utils"
)

// Repository is the durable usage store.
type Repository interface {
	Accrue(ctx context.Context, businessID, month string, minutes float64, limit int) (Record, error)
	Get(ctx context.Context, businessID, month string) (Record, error)
	ClaimAlert(ctx context.Context, businessID, month string, threshold int) (bool, error)
}

// Accrual is the outcome of adding one call's minutes.
type Accrual struct {
	Record  Record
	Minutes float64
	// Crossed lists the thresholds whose alert this accrual claimed.
	Crossed []int
}

type Tracker struct {
	repo Repository
}

func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo}
}

// Accrue adds a call's duration to the month containing at, then claims every
// threshold now reached whose alert has not been sent. A limit of zero means
// the tier is unknown: the stored limit is kept and no threshold is claimed,
// so the next accrual with a known limit picks them up.
func (t *Tracker) Accrue(ctx context.Context, businessID string, limit int, seconds int, at time.Time) (Accrual, error) {
	minutes := RoundMinutes(seconds)
	rec, err := t.repo.Accrue(ctx, businessID, Month(at), minutes, limit)
	if err != nil {
		return Accrual{}, fmt.Errorf("usage: accrue: %w", err)
	}
	if limit <= 0 {
		return Accrual{Record: rec, Minutes: minutes}, nil
	}
	crossed, err := t.CheckThresholds(ctx, rec)
	out := Accrual{Record: rec, Minutes: minutes, Crossed: crossed}
	if err != nil {
		return out, err
	}
	return out, nil
}

// CheckThresholds claims alerts for a record. Calling it again with the same
// totals claims nothing new.
func (t *Tracker) CheckThresholds(ctx context.Context, rec Record) ([]int, error) {
	var crossed []int
	for _, th := range Reached(rec) {
		if rec.AlertSent(th) {
			continue
		}
		ok, err := t.repo.ClaimAlert(ctx, rec.BusinessID, rec.Month, th)
		if err != nil {
			return crossed, fmt.Errorf("usage: claim %d%% alert: %w", th, err)
		}
		if ok {
			crossed = append(crossed, th)
		}
	}
	return crossed, nil
}

// Current reads a month, treating a missing row as zero usage.
func (t *Tracker) Current(ctx context.Context, businessID string, limit int, at time.Time) (Record, error) {
	rec, err := t.repo.Get(ctx, businessID, Month(at))
	if errors.Is(err, ErrNotFound) {
		return Record{BusinessID: businessID, Month: Month(at), MinutesLimit: limit}, nil
	}
	if err != nil {
		return Record{}, err
	}
	if rec.MinutesLimit == 0 {
		rec.MinutesLimit = limit
	}
	return rec, nil
}

// Month is the usage bucket key for t.
func Month(t time.Time) string {
	return t.Format("2006-01")
}

// ActiveCalls is the per-business live call counter shared by every worker.
type ActiveCalls struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewActiveCalls counts in Redis. ttl bounds how long a counter survives
// without activity.
func NewActiveCalls(rdb *redis.Client, ttl time.Duration) *ActiveCalls {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ActiveCalls{rdb: rdb, ttl: ttl}
}

func ActiveCallsKey(businessID string) string {
	return "active_calls:" + businessID
}

func (a *ActiveCalls) Incr(ctx context.Context, businessID string) (int64, error) {
	return utils.IncrCounter(ctx, a.rdb, ActiveCallsKey(businessID), a.ttl)
}

func (a *ActiveCalls) Decr(ctx context.Context, businessID string) (int64, error) {
	return utils.DecrCounter(ctx, a.rdb, ActiveCallsKey(businessID))
}

func (a *ActiveCalls) Count(ctx context.Context, businessID string) (int64, error) {
	return utils.GetCounter(ctx, a.rdb, ActiveCallsKey(businessID))
}
