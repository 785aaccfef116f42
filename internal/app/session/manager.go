package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
	"github.com/PabloGalante/farum-voice/internal/app/tools"
	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

// Manager opens sessions against the scenario registry and tracks the live
// ones so they can be flushed on shutdown.
type Manager struct {
	registry  *agentflow.Registry
	log       ConversationLog
	moderator domain.Moderator
	tools     []tools.Tool

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(registry *agentflow.Registry, log ConversationLog, moderator domain.Moderator, toolset ...tools.Tool) *Manager {
	return &Manager{
		registry:  registry,
		log:       log,
		moderator: moderator,
		tools:     toolset,
		sessions:  make(map[string]*Session),
	}
}

// Open starts a session for scenario. An empty scenario selects the
// registry's fallback; a scenario without its own graph runs on the
// fallback graph but keeps its own history bucket.
func (m *Manager) Open(ctx context.Context, scenario string) (*Session, error) {
	scenario = m.registry.Scenario(scenario)

	graph, err := m.registry.Lookup(scenario)
	if errors.Is(err, domain.ErrNotFound) {
		graph, err = m.registry.Lookup(m.registry.Fallback())
	}
	if err != nil {
		return nil, fmt.Errorf("open session %q: %w", scenario, err)
	}

	s, err := New(ctx, scenario, graph, m.log, m.moderator, m.tools...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	observability.LoggerFromContext(ctx).Info("session opened",
		"session_id", s.ID(), "scenario", scenario, "agent", s.Agent().ID)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close flushes and forgets a session.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return s.Close(ctx)
}

// CloseAll flushes every live session.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	clear(m.sessions)
	m.mu.Unlock()

	var errs []error
	for _, s := range live {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
