package agentflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

// Router tracks which agent currently owns the conversation and only lets it
// move along declared edges. There is no terminal state: a session ends when
// the caller disconnects.
type Router struct {
	mu     sync.Mutex
	graph  *Graph
	active domain.AgentID
}

func NewRouter(g *Graph) *Router {
	return &Router{
		graph:  g,
		active: g.entry,
	}
}

func (r *Router) Graph() *Graph {
	return r.graph
}

// Active returns the agent that currently owns the conversation.
func (r *Router) Active() Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph.nodes[r.active].clone()
}

// Handoff moves control to `to`. An undeclared transition returns
// domain.ErrIllegalHandoff and leaves the active agent unchanged.
func (r *Router) Handoff(ctx context.Context, to domain.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.active
	log := observability.LoggerFromContext(ctx).With("from", from, "to", to)

	if !r.graph.CanHandoff(from, to) {
		observability.Handoffs.WithLabelValues("illegal").Inc()
		log.Warn("rejected undeclared handoff")
		return fmt.Errorf("%w: %q -> %q", domain.ErrIllegalHandoff, from, to)
	}

	r.active = to
	observability.Handoffs.WithLabelValues("ok").Inc()
	log.Info("handoff")
	return nil
}

// Escalate walks the shortest declared path to the safety node. It is a no-op
// when the safety node is already active.
func (r *Router) Escalate(ctx context.Context) error {
	for range MaxSafetyHops {
		r.mu.Lock()
		active := r.active
		r.mu.Unlock()

		if active == r.graph.safety {
			return nil
		}
		next, ok := r.graph.nextHopToSafety(active)
		if !ok {
			break
		}
		if err := r.Handoff(ctx, next); err != nil {
			return err
		}
	}

	if r.Active().ID != r.graph.safety {
		return fmt.Errorf("%w: no crisis path from %q", domain.ErrIllegalHandoff, r.Active().ID)
	}
	return nil
}

// Reset puts the entry agent back in control.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = r.graph.entry
}
