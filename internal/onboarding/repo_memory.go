package onboarding

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicebot/internal/ai"
)

// MemoryRepo mirrors PostgresRepo for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]*Interview
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: map[string]*Interview{}}
}

func (m *MemoryRepo) Create(_ context.Context, businessID string, questions []ai.Question) (Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if businessID == "" || len(questions) == 0 {
		return Interview{}, ErrInvalidArgument
	}
	iv := Interview{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Status:     StatusPending,
		Questions:  append([]ai.Question(nil), questions...),
		Answers:    map[string]string{},
		CreatedAt:  time.Now().UTC(),
	}
	cp := iv
	m.items[iv.ID] = &cp
	return copyInterview(iv), nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.items[id]
	if !ok {
		return Interview{}, ErrNotFound
	}
	return copyInterview(*iv), nil
}

func (m *MemoryRepo) MarkInProgress(_ context.Context, id, callSid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.items[id]
	if !ok || iv.Status != StatusPending {
		return ErrNotFound
	}
	iv.ProviderCallSID = callSid
	iv.Status = StatusInProgress
	return nil
}

func (m *MemoryRepo) RecordAnswer(_ context.Context, id, field, answer string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if field == "" {
		return false, ErrInvalidArgument
	}
	iv, ok := m.items[id]
	if !ok || iv.Status == StatusCompleted {
		return false, nil
	}
	if _, exists := iv.Answers[field]; exists {
		return false, nil
	}
	iv.Answers[field] = answer
	return true, nil
}

func (m *MemoryRepo) Complete(_ context.Context, id string, at time.Time) (Interview, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.items[id]
	if !ok || iv.Status == StatusCompleted {
		return Interview{}, false, nil
	}
	iv.Status = StatusCompleted
	iv.CompletedAt = &at
	return copyInterview(*iv), true, nil
}

func copyInterview(iv Interview) Interview {
	iv.Questions = append([]ai.Question(nil), iv.Questions...)
	answers := make(map[string]string, len(iv.Answers))
	for k, v := range iv.Answers {
		answers[k] = v
	}
	iv.Answers = answers
	return iv
}
