package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

// ConversationLog is the part of the conversation store the recorder writes
// to. *conversation.Service implements it.
type ConversationLog interface {
	OpenConversation(ctx context.Context, scenario string) (domain.ConversationID, error)
	AppendTo(ctx context.Context, scenario string, id domain.ConversationID, role domain.Role, text string) error
}

// Recorder buffers the committed messages of the current session and writes
// them to the conversation log as one conversation on Flush.
type Recorder struct {
	log ConversationLog

	mu       sync.Mutex
	scenario string
	buffer   []domain.Message
}

func NewRecorder(log ConversationLog) *Recorder {
	return &Recorder{log: log}
}

// Initialize makes scenario the active one. Messages still buffered for the
// previous scenario are flushed first; if that flush fails the recorder keeps
// its previous scenario and buffer and returns the error.
func (r *Recorder) Initialize(ctx context.Context, scenario string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buffer) > 0 {
		if err := r.flushLocked(ctx); err != nil {
			return err
		}
	}

	r.scenario = scenario
	r.buffer = nil
	observability.LoggerFromContext(ctx).Info("session initialized", "scenario", scenario)
	return nil
}

// Record buffers a message. It is ignored until a scenario is known and when
// text is blank.
func (r *Recorder) Record(role domain.Role, text string) {
	text = strings.TrimSpace(text)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scenario == "" || text == "" {
		return
	}
	r.buffer = append(r.buffer, domain.Message{Role: role, Content: text})
}

// Flush opens a new conversation under the active scenario, appends every
// buffered message in order and clears the buffer. When the conversation
// cannot be opened the buffer is kept for a later attempt.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) error {
	if r.scenario == "" || len(r.buffer) == 0 {
		return nil
	}
	log := observability.LoggerFromContext(ctx).With("scenario", r.scenario)

	id, err := r.log.OpenConversation(ctx, r.scenario)
	if err != nil {
		log.Error("failed to start conversation, keeping buffer", "buffered", len(r.buffer), "error", err)
		return err
	}

	for i, m := range r.buffer {
		err := r.log.AppendTo(ctx, r.scenario, id, m.Role, m.Content)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrDuplicateMessage), errors.Is(err, domain.ErrEmptyMessage):
			log.Debug("skipped message on flush", "conversation_id", id, "error", err)
		default:
			r.buffer = r.buffer[i:]
			log.Error("failed to flush session", "conversation_id", id, "remaining", len(r.buffer), "error", err)
			return err
		}
	}

	log.Info("session flushed", "conversation_id", id, "messages", len(r.buffer))
	r.buffer = nil
	return nil
}

// EndSession flushes on disconnect or shutdown.
func (r *Recorder) EndSession(ctx context.Context) error {
	return r.Flush(ctx)
}

// Scenario returns the active scenario, empty before Initialize.
func (r *Recorder) Scenario() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scenario
}

// Buffered returns a copy of the messages not yet flushed.
func (r *Recorder) Buffered() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.buffer))
	copy(out, r.buffer)
	return out
}
