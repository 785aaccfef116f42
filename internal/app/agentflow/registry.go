package agentflow

import (
	"fmt"
	"sort"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// Registry maps scenario names to their agent graphs. It is filled at startup
// and read-only afterwards.
type Registry struct {
	graphs   map[string]*Graph
	fallback string
}

// NewRegistry creates a registry whose fallback scenario is used for lookups
// with an empty name.
func NewRegistry(fallback string) *Registry {
	if fallback == "" {
		fallback = domain.DefaultScenario
	}
	return &Registry{
		graphs:   make(map[string]*Graph),
		fallback: fallback,
	}
}

// DefaultRegistry holds the built-in therapist scenario under
// domain.DefaultScenario.
func DefaultRegistry() (*Registry, error) {
	g, err := NewTherapistGraph()
	if err != nil {
		return nil, err
	}
	r := NewRegistry(domain.DefaultScenario)
	r.Register(domain.DefaultScenario, g)
	return r, nil
}

func (r *Registry) Register(scenario string, g *Graph) {
	r.graphs[scenario] = g
}

// Fallback is the scenario used when none is supplied.
func (r *Registry) Fallback() string {
	return r.fallback
}

// Scenario normalizes an empty name to the fallback.
func (r *Registry) Scenario(name string) string {
	if name == "" {
		return r.fallback
	}
	return name
}

// Lookup returns the graph for scenario (fallback when empty).
func (r *Registry) Lookup(scenario string) (*Graph, error) {
	g, ok := r.graphs[r.Scenario(scenario)]
	if !ok {
		return nil, fmt.Errorf("scenario %q: %w", r.Scenario(scenario), domain.ErrNotFound)
	}
	return g, nil
}

func (r *Registry) Scenarios() []string {
	out := make([]string, 0, len(r.graphs))
	for name := range r.graphs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
