package goals

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is an in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	goals map[string]Goal
	edges []DependencyEdge
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{goals: make(map[string]Goal)}
}

func (s *InMemoryStore) SaveGoal(_ context.Context, g Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = g.Clone()
	return nil
}

func (s *InMemoryStore) GetGoal(_ context.Context, id string) (Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return Goal{}, ErrStoreNotFound
	}
	return g.Clone(), nil
}

func (s *InMemoryStore) DeleteGoal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.goals, id)
	return nil
}

func (s *InMemoryStore) ListGoals(_ context.Context, limit int) ([]Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Goal, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ReplaceEdges(_ context.Context, edges []DependencyEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append([]DependencyEdge(nil), edges...)
	return nil
}

func (s *InMemoryStore) ListEdges(_ context.Context) ([]DependencyEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]DependencyEdge(nil), s.edges...), nil
}

func (s *InMemoryStore) Close() error { return nil }
