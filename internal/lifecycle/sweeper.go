package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"voicebot/internal/calls"
	"voicebot/pkg/logger"
)

// cronParser accepts 5- or 6-field expressions and descriptors like "@every 10m".
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

const defaultSweepBatch = 200

// StaleLister finds calls that were never finalized.
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]calls.Call, error)
}

type SweeperConfig struct {
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
	Logger     *slog.Logger
}

// Sweeper expires calls whose terminal callback was lost, so they stop
// holding an active-call slot.
type Sweeper struct {
	calls    StaleLister
	recorder *Recorder
	cfg      SweeperConfig
	log      *slog.Logger

	Now func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(lister StaleLister, recorder *Recorder, cfg SweeperConfig) *Sweeper {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 4 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatch
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 10m"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{calls: lister, recorder: recorder, cfg: cfg, log: log.With("component", "sweeper"), Now: time.Now}
}

// Sweep expires one batch of stale calls and returns how many it finalized.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.Now().Add(-s.cfg.StaleAfter)
	stale, err := s.calls.ListStale(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: list stale calls: %w", err)
	}
	ctx = logger.With(ctx, s.log)
	n := 0
	for _, c := range stale {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if s.recorder.Expire(ctx, c.ProviderCallSID) {
			n++
		}
	}
	if n > 0 {
		s.log.Info("expired stale calls", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Start schedules Sweep. Overlapping runs are skipped.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.log.Error("sweep failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("lifecycle: invalid sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts scheduling and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
