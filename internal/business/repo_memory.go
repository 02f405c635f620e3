package business

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory business repository for tests and local runs.
type MemoryRepo struct {
	mu sync.Mutex

	Businesses map[string]Business
	Numbers    map[string]NumberOverride // key: phone number
	NumberBiz  map[string]string         // phone number -> business id
	Knowledge  map[string][]KnowledgeDoc

	// GetErr fails Get when set.
	GetErr error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		Businesses: map[string]Business{},
		Numbers:    map[string]NumberOverride{},
		NumberBiz:  map[string]string{},
		Knowledge:  map[string][]KnowledgeDoc{},
	}
}

// Assign registers an assigned number for a business.
func (m *MemoryRepo) Assign(b Business, n NumberOverride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Businesses[b.ID] = b
	m.Numbers[n.Number] = n
	m.NumberBiz[n.Number] = b.ID
}

func (m *MemoryRepo) ResolveByNumber(_ context.Context, number string) (Resolved, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.NumberBiz[number]
	if !ok {
		return Resolved{}, ErrNotFound
	}
	b, ok := m.Businesses[id]
	if !ok {
		return Resolved{}, ErrNotFound
	}
	return Resolved{Business: b, Number: m.Numbers[number]}, nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return Business{}, m.GetErr
	}
	b, ok := m.Businesses[id]
	if !ok {
		return Business{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryRepo) NumberOverrideFor(_ context.Context, number string) (NumberOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Numbers[number], nil
}

func (m *MemoryRepo) KnowledgeBase(_ context.Context, businessID string, limit int) ([]KnowledgeDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.Knowledge[businessID]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return append([]KnowledgeDoc(nil), docs...), nil
}

func (m *MemoryRepo) ApplyAgentConfig(_ context.Context, businessID string, cfg AgentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Businesses[businessID]
	if !ok {
		return ErrNotFound
	}
	hours := b.Agent.Hours
	b.Agent = cfg
	if len(cfg.Hours) == 0 {
		b.Agent.Hours = hours
	}
	b.Status = StatusReadyForReview
	m.Businesses[businessID] = b
	return nil
}

func (m *MemoryRepo) SetStatus(_ context.Context, businessID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Businesses[businessID]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	m.Businesses[businessID] = b
	return nil
}
