package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
	"github.com/PabloGalante/farum-voice/internal/app/tools"
	"github.com/PabloGalante/farum-voice/internal/app/transcript"
	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

// ErrClosed is returned when events arrive after Close.
var ErrClosed = errors.New("session closed")

// Session is one live realtime connection: the agent router, the transcript
// engine and the recorder it feeds. Events must be handled one at a time.
type Session struct {
	id        string
	scenario  string
	router    *agentflow.Router
	engine    *transcript.Engine
	recorder  *Recorder
	moderator domain.Moderator
	tools     *tools.Dispatcher

	mu     sync.Mutex
	closed bool
}

// New opens a session on graph for scenario. moderator may be nil. The
// session's agents may call toolset, each within its own allowed set.
func New(ctx context.Context, scenario string, graph *agentflow.Graph, log ConversationLog, moderator domain.Moderator, toolset ...tools.Tool) (*Session, error) {
	rec := NewRecorder(log)
	if err := rec.Initialize(ctx, scenario); err != nil {
		return nil, err
	}

	router := agentflow.NewRouter(graph)
	return &Session{
		id:        "sess_" + uuid.NewString(),
		scenario:  scenario,
		router:    router,
		engine:    transcript.NewEngine(router, rec),
		recorder:  rec,
		moderator: moderator,
		tools:     tools.NewDispatcher(graph, toolset...),
	}, nil
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Scenario() string { return s.scenario }

// Agent returns the agent that currently owns the conversation.
func (s *Session) Agent() agentflow.Node {
	return s.router.Active()
}

// Transcript returns a snapshot of the reconciled transcript.
func (s *Session) Transcript() []domain.TranscriptItem {
	return s.engine.Items()
}

// Buffered returns the messages recorded but not yet flushed.
func (s *Session) Buffered() []domain.Message {
	return s.recorder.Buffered()
}

// Handle decodes and applies one wire event. Malformed events are dropped and
// reported through the returned error; the session stays usable.
func (s *Session) Handle(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	ctx = observability.WithRequestID(ctx, s.id)
	ev, err := s.engine.ApplyRaw(ctx, data)
	if err != nil {
		return err
	}
	s.moderate(ctx, ev)
	return nil
}

// Apply applies an already decoded event.
func (s *Session) Apply(ctx context.Context, ev transcript.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.engine.Apply(ctx, ev)
	s.moderate(ctx, ev)
	return nil
}

// Dispatch runs a tool call on behalf of the session's active agent. claimed
// is the agent the caller believes it is speaking for; when set it must match
// the active agent, otherwise the call fails with domain.ErrToolNotAllowed.
// Handoffs decide which tools are reachable, not the caller.
func (s *Session) Dispatch(ctx context.Context, userID domain.UserID, claimed domain.AgentID, call tools.Call) (tools.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return tools.Result{}, ErrClosed
	}
	active := s.router.Active().ID
	s.mu.Unlock()

	ctx = observability.WithRequestID(ctx, s.id)
	if claimed != "" && claimed != active {
		observability.ToolCalls.WithLabelValues(string(call.Tool), "denied").Inc()
		observability.LoggerFromContext(ctx).Warn("tool call from inactive agent",
			"tool", call.Tool, "claimed", claimed, "active", active)
		return tools.Result{}, fmt.Errorf("%w: %q is not the active agent (%q is)", domain.ErrToolNotAllowed, claimed, active)
	}

	return s.tools.Dispatch(ctx, tools.ToolContext{
		UserID:    userID,
		Scenario:  s.scenario,
		Agent:     active,
		RequestID: s.id,
	}, call)
}

// moderate classifies a just-completed assistant message and reports a
// flagged verdict back into the transcript.
func (s *Session) moderate(ctx context.Context, ev transcript.Event) {
	if s.moderator == nil {
		return
	}
	done, ok := ev.(transcript.TranscriptionCompleted)
	if !ok {
		return
	}
	item, ok := s.engine.Item(done.ItemID)
	if !ok || item.Role != domain.RoleAssistant || item.Title == domain.MarkerInaudible {
		return
	}

	log := observability.LoggerFromContext(ctx).With("item_id", item.ItemID)
	verdict, err := s.moderator.Moderate(ctx, item.Title)
	if err != nil {
		log.Warn("moderation failed", "error", err)
		return
	}
	if !verdict.Flagged() {
		return
	}
	if verdict.TestText == "" {
		verdict.TestText = item.Title
	}
	s.engine.Apply(ctx, transcript.GuardrailTripped{ItemID: item.ItemID, Verdict: verdict})
}

// Close flushes the recorder before returning. It is safe to call more than
// once; only the first call flushes.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	ctx = observability.WithRequestID(ctx, s.id)
	if err := s.recorder.EndSession(ctx); err != nil {
		observability.LoggerFromContext(ctx).Error("session closed with unflushed messages",
			"scenario", s.scenario, "buffered", len(s.recorder.Buffered()), "error", err)
		return err
	}
	return nil
}
