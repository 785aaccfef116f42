package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// ScenarioStore is an in-memory domain.ScenarioStore.
// It is NOT persistent and is only suitable for development / local mode.
type ScenarioStore struct {
	mu        sync.RWMutex
	scenarios map[string]*domain.Scenario
	order     []string
}

func NewScenarioStore() *ScenarioStore {
	return &ScenarioStore{
		scenarios: make(map[string]*domain.Scenario),
	}
}

func (s *ScenarioStore) LoadScenario(_ context.Context, name string) (*domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenarios[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sc.Clone(), nil
}

func (s *ScenarioStore) SaveScenario(_ context.Context, scenario *domain.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scenarios[scenario.Name]; !exists {
		s.order = append(s.order, scenario.Name)
	}
	s.scenarios[scenario.Name] = scenario.Clone()
	return nil
}

func (s *ScenarioStore) SaveConversation(_ context.Context, scenario string, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scenarios[scenario]
	if !ok {
		return domain.ErrNotFound
	}
	sc.PutConversation(conv.Clone())
	return nil
}

// ListScenarios returns scenarios in creation order.
func (s *ScenarioStore) ListScenarios(_ context.Context) ([]*domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Scenario, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.scenarios[name].Clone())
	}
	return out, nil
}

func (s *ScenarioStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scenarios = make(map[string]*domain.Scenario)
	s.order = nil
	return nil
}
