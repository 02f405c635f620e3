package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo mirrors PostgresRepo semantics in memory for tests and local runs.
type MemoryRepo struct {
	mu    sync.Mutex
	bySID map[string]*Call
	now   func() time.Time

	// FailWrites makes every mutating call return this error.
	FailWrites error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bySID: map[string]*Call{}, now: time.Now}
}

func (m *MemoryRepo) Create(_ context.Context, c Call) (Call, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return Call{}, false, m.FailWrites
	}
	if c.ProviderCallSID == "" || c.BusinessID == "" {
		return Call{}, false, ErrInvalidArgument
	}
	if _, ok := m.bySID[c.ProviderCallSID]; ok {
		return Call{}, false, nil
	}
	if c.Direction == "" {
		c.Direction = DirectionInbound
	}
	c.ID = uuid.NewString()
	c.Status = StatusInProgress
	c.LastTurn = -1
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	cp := c
	m.bySID[c.ProviderCallSID] = &cp
	return c, true, nil
}

// Put stores a call as-is, for seeding history in tests.
func (m *MemoryRepo) Put(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := c
	m.bySID[c.ProviderCallSID] = &cp
}

func (m *MemoryRepo) GetBySID(_ context.Context, sid string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.bySID[sid]
	if !ok {
		return Call{}, ErrNotFound
	}
	return clone(*c), nil
}

// Count returns the number of stored calls.
func (m *MemoryRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySID)
}

func (m *MemoryRepo) ConversationLog(_ context.Context, sid string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.bySID[sid]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Entry(nil), c.ConversationLog...), nil
}

func (m *MemoryRepo) MirrorConversation(_ context.Context, sid string, turn int, log []Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return false, m.FailWrites
	}
	c, ok := m.bySID[sid]
	if !ok || c.LastTurn >= turn {
		return false, nil
	}
	c.ConversationLog = append([]Entry(nil), log...)
	c.LastTurn = turn
	return true, nil
}

func (m *MemoryRepo) MarkVoicemail(_ context.Context, sid, recordingURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return false, m.FailWrites
	}
	c, ok := m.bySID[sid]
	if !ok || !CanTransition(c.Status, StatusVoicemail) {
		return false, nil
	}
	c.Status = StatusVoicemail
	if recordingURL != "" {
		c.RecordingURL = recordingURL
	}
	return true, nil
}

func (m *MemoryRepo) Finalize(_ context.Context, sid string, status Status, durationSeconds int, at time.Time) (Call, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return Call{}, false, m.FailWrites
	}
	if !status.Terminal() {
		return Call{}, false, ErrInvalidArgument
	}
	c, ok := m.bySID[sid]
	if !ok || c.FinalizedAt != nil {
		return Call{}, false, nil
	}
	if CanTransition(c.Status, status) {
		c.Status = status
	}
	c.DurationSeconds = durationSeconds
	c.CompletedAt = &at
	c.FinalizedAt = &at
	return clone(*c), true, nil
}

func (m *MemoryRepo) SaveAnalysis(_ context.Context, callID string, a Analysis, log []Entry, recordingURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	for _, c := range m.bySID {
		if c.ID != callID {
			continue
		}
		c.Transcript = a.Transcript
		c.Summary = a.Summary
		c.Category = a.Category
		c.Sentiment = a.Sentiment
		c.CallerName = a.CallerName
		c.CallerIntent = a.CallerIntent
		c.Resolution = a.Resolution
		c.ActionItems = append([]string(nil), a.ActionItems...)
		c.ConversationLog = append([]Entry(nil), log...)
		if recordingURL != "" {
			c.RecordingURL = recordingURL
		}
		return nil
	}
	return ErrNotFound
}

func (m *MemoryRepo) RecentCompleted(_ context.Context, businessID, callerNumber string, limit int) ([]HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 2
	}
	var matched []Call
	for _, c := range m.bySID {
		if c.BusinessID == businessID && c.CallerNumber == callerNumber && c.Status == StatusCompleted {
			matched = append(matched, *c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]HistoryItem, 0, len(matched))
	for _, c := range matched {
		out = append(out, HistoryItem{
			Date:            c.CreatedAt,
			Summary:         c.Summary,
			Category:        c.Category,
			Sentiment:       c.Sentiment,
			CallerName:      c.CallerName,
			DurationSeconds: c.DurationSeconds,
		})
	}
	return out, nil
}

func (m *MemoryRepo) ListLive(_ context.Context, businessID string) ([]Call, error) {
	return m.filter(func(c *Call) bool { return c.BusinessID == businessID && c.Status == StatusInProgress }, true), nil
}

func (m *MemoryRepo) ListStale(_ context.Context, cutoff time.Time, limit int) ([]Call, error) {
	out := m.filter(func(c *Call) bool { return c.FinalizedAt == nil && c.CreatedAt.Before(cutoff) }, false)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepo) ListRange(_ context.Context, businessID string, from, to time.Time) ([]Call, error) {
	if businessID == "" {
		return nil, ErrInvalidArgument
	}
	return m.filter(func(c *Call) bool {
		return c.BusinessID == businessID && !c.CreatedAt.Before(from) && c.CreatedAt.Before(to)
	}, false), nil
}

func (m *MemoryRepo) filter(keep func(*Call) bool, newestFirst bool) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.bySID {
		if keep(c) {
			out = append(out, clone(*c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func clone(c Call) Call {
	c.ConversationLog = append([]Entry(nil), c.ConversationLog...)
	c.ActionItems = append([]string(nil), c.ActionItems...)
	return c
}
