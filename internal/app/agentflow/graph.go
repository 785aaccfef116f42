package agentflow

import (
	"errors"
	"fmt"
	"slices"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// MaxSafetyHops is the longest handoff path allowed between any agent and the
// safety node.
const MaxSafetyHops = 2

// Node is one agent persona: what it does, which tools it may call and whom it
// may hand the conversation to. Values returned by Graph are copies.
type Node struct {
	ID           domain.AgentID
	Description  string
	Instructions string
	Voice        string
	Tools        []domain.ToolName
	Handoffs     []domain.AgentID
}

func (n Node) clone() Node {
	n.Tools = slices.Clone(n.Tools)
	n.Handoffs = slices.Clone(n.Handoffs)
	return n
}

// CanUse reports whether tool is in the node's allowed set.
func (n Node) CanUse(tool domain.ToolName) bool {
	return slices.Contains(n.Tools, tool)
}

// Graph is a validated, frozen handoff graph.
type Graph struct {
	nodes  map[domain.AgentID]Node
	order  []domain.AgentID
	entry  domain.AgentID
	safety domain.AgentID
}

type edge struct {
	from, to domain.AgentID
}

// Builder declares nodes first, then edges, then validates and freezes the
// result in Build. A Builder is single-use.
type Builder struct {
	nodes  map[domain.AgentID]Node
	order  []domain.AgentID
	edges  []edge
	entry  domain.AgentID
	safety domain.AgentID
	errs   []error
}

func NewBuilder() *Builder {
	return &Builder{nodes: make(map[domain.AgentID]Node)}
}

// AddNode declares an agent. Handoffs on n are ignored; use AddEdge.
func (b *Builder) AddNode(n Node) *Builder {
	if n.ID == "" {
		b.errs = append(b.errs, fmt.Errorf("%w: agent with empty id", domain.ErrConfiguration))
		return b
	}
	if _, dup := b.nodes[n.ID]; dup {
		b.errs = append(b.errs, fmt.Errorf("%w: duplicate agent %q", domain.ErrConfiguration, n.ID))
		return b
	}
	n = n.clone()
	n.Handoffs = nil
	b.nodes[n.ID] = n
	b.order = append(b.order, n.ID)
	return b
}

// AddEdge declares that from may hand the conversation to each of to.
func (b *Builder) AddEdge(from domain.AgentID, to ...domain.AgentID) *Builder {
	for _, t := range to {
		b.edges = append(b.edges, edge{from: from, to: t})
	}
	return b
}

func (b *Builder) Entry(id domain.AgentID) *Builder {
	b.entry = id
	return b
}

func (b *Builder) Safety(id domain.AgentID) *Builder {
	b.safety = id
	return b
}

// Build validates the declared graph. Structural problems wrap
// domain.ErrConfiguration; a missing crisis path wraps domain.ErrUnsafeGraph.
func (b *Builder) Build() (*Graph, error) {
	errs := slices.Clone(b.errs)

	if len(b.nodes) == 0 {
		errs = append(errs, fmt.Errorf("%w: graph has no agents", domain.ErrConfiguration))
	}
	if _, ok := b.nodes[b.entry]; !ok {
		errs = append(errs, fmt.Errorf("%w: entry agent %q is not declared", domain.ErrConfiguration, b.entry))
	}
	if _, ok := b.nodes[b.safety]; !ok {
		errs = append(errs, fmt.Errorf("%w: safety agent %q is not declared", domain.ErrConfiguration, b.safety))
	}

	for _, id := range b.order {
		for _, tool := range b.nodes[id].Tools {
			if !domain.IsKnownTool(tool) {
				errs = append(errs, fmt.Errorf("%w: agent %q references unknown tool %q", domain.ErrConfiguration, id, tool))
			}
		}
	}

	nodes := make(map[domain.AgentID]Node, len(b.nodes))
	for id, n := range b.nodes {
		nodes[id] = n
	}
	for _, e := range b.edges {
		from, okFrom := nodes[e.from]
		_, okTo := nodes[e.to]
		switch {
		case !okFrom:
			errs = append(errs, fmt.Errorf("%w: handoff from undeclared agent %q", domain.ErrConfiguration, e.from))
			continue
		case !okTo:
			errs = append(errs, fmt.Errorf("%w: agent %q hands off to undeclared agent %q", domain.ErrConfiguration, e.from, e.to))
			continue
		case e.from == e.to:
			errs = append(errs, fmt.Errorf("%w: agent %q hands off to itself", domain.ErrConfiguration, e.from))
			continue
		}
		if !slices.Contains(from.Handoffs, e.to) {
			from.Handoffs = append(from.Handoffs, e.to)
			nodes[e.from] = from
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g := &Graph{
		nodes:  nodes,
		order:  slices.Clone(b.order),
		entry:  b.entry,
		safety: b.safety,
	}

	for _, id := range g.order {
		if hops := g.HopsToSafety(id); hops < 0 || hops > MaxSafetyHops {
			errs = append(errs, fmt.Errorf("%w: safety agent %q is not reachable from %q within %d handoffs",
				domain.ErrUnsafeGraph, g.safety, id, MaxSafetyHops))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g, nil
}

// Resolve returns the node for id.
func (g *Graph) Resolve(id domain.AgentID) (Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", domain.ErrAgentNotFound, id)
	}
	return n.clone(), nil
}

// CanHandoff reports whether from -> to is a declared edge.
func (g *Graph) CanHandoff(from, to domain.AgentID) bool {
	n, ok := g.nodes[from]
	if !ok {
		return false
	}
	return slices.Contains(n.Handoffs, to)
}

func (g *Graph) EntryPoint() Node {
	return g.nodes[g.entry].clone()
}

func (g *Graph) Safety() Node {
	return g.nodes[g.safety].clone()
}

// Nodes returns all agents in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// Authorize checks that agent may call tool.
func (g *Graph) Authorize(agent domain.AgentID, tool domain.ToolName) error {
	n, ok := g.nodes[agent]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, agent)
	}
	if !n.CanUse(tool) {
		return fmt.Errorf("%w: %q cannot call %q", domain.ErrToolNotAllowed, agent, tool)
	}
	return nil
}

// HopsToSafety returns the length of the shortest handoff path from id to the
// safety node, 0 for the safety node itself and -1 when unreachable.
func (g *Graph) HopsToSafety(id domain.AgentID) int {
	if _, ok := g.nodes[id]; !ok {
		return -1
	}
	if id == g.safety {
		return 0
	}

	dist := map[domain.AgentID]int{id: 0}
	queue := []domain.AgentID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.nodes[cur].Handoffs {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = dist[cur] + 1
			if next == g.safety {
				return dist[next]
			}
			queue = append(queue, next)
		}
	}
	return -1
}

// nextHopToSafety returns the first agent on a shortest path from id to the
// safety node.
func (g *Graph) nextHopToSafety(id domain.AgentID) (domain.AgentID, bool) {
	best, bestHops := domain.AgentID(""), -1
	for _, next := range g.nodes[id].Handoffs {
		h := g.HopsToSafety(next)
		if h < 0 {
			continue
		}
		if bestHops < 0 || h < bestHops {
			best, bestHops = next, h
		}
	}
	return best, bestHops >= 0
}
