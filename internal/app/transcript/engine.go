package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

// GuardrailMarker prefixes the corrective instruction the agent runtime
// injects after an output guardrail trips. It is followed by a JSON object.
const GuardrailMarker = "Failure Details: "

const (
	titleGuardrailActive = "Output Guardrail Active"
	titleIllegalHandoff  = "Illegal handoff"
	titleAgentHandoff    = "Agent handoff"
)

// Recorder receives the committed dialogue text of a session.
type Recorder interface {
	Record(role domain.Role, text string)
}

// Engine reconciles transcript events of one session into a Transcript and
// forwards committed text to a Recorder. Events are applied one at a time in
// arrival order.
type Engine struct {
	mu         sync.Mutex
	transcript *Transcript
	router     *agentflow.Router
	recorder   Recorder
	now        func() time.Time

	// forwarded holds the last text sent to the recorder per item.
	forwarded map[domain.ItemID]string
}

// NewEngine creates an engine. router and recorder may be nil.
func NewEngine(router *agentflow.Router, recorder Recorder) *Engine {
	return &Engine{
		transcript: NewTranscript(),
		router:     router,
		recorder:   recorder,
		now:        time.Now,
		forwarded:  make(map[domain.ItemID]string),
	}
}

// Items returns a snapshot of the transcript.
func (e *Engine) Items() []domain.TranscriptItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transcript.Items()
}

// Messages returns a snapshot of the dialogue messages.
func (e *Engine) Messages() []domain.TranscriptItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transcript.Messages()
}

// Breadcrumbs returns a snapshot of the annotations.
func (e *Engine) Breadcrumbs() []domain.TranscriptItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transcript.Breadcrumbs()
}

// Item returns a copy of one transcript item.
func (e *Engine) Item(id domain.ItemID) (domain.TranscriptItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.transcript.get(id)
	if !ok {
		return domain.TranscriptItem{}, false
	}
	c := *it
	if it.Guardrail != nil {
		g := *it.Guardrail
		c.Guardrail = &g
	}
	return c, true
}

// ApplyRaw decodes one wire event and applies it. A malformed event is
// dropped and the decode error returned; the transcript is left untouched.
func (e *Engine) ApplyRaw(ctx context.Context, data []byte) (Event, error) {
	ev, err := Decode(data)
	if err != nil {
		observability.TranscriptEventsDropped.WithLabelValues("malformed").Inc()
		observability.LoggerFromContext(ctx).Warn("dropping malformed transcript event", "error", err)
		return nil, err
	}
	e.Apply(ctx, ev)
	return ev, nil
}

// Apply reconciles one event. Failures are absorbed: they become breadcrumbs
// or dropped events, never errors.
func (e *Engine) Apply(ctx context.Context, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	observability.TranscriptEvents.WithLabelValues(ev.Kind()).Inc()
	log := observability.LoggerFromContext(ctx).With("event", ev.Kind())

	switch ev := ev.(type) {
	case HistoryAdded:
		e.historyAdded(log, ev)
	case HistoryUpdated:
		e.historyUpdated(log, ev)
	case TranscriptionDelta:
		e.delta(log, ev)
	case TranscriptionCompleted:
		e.completed(log, ev)
	case GuardrailTripped:
		e.guardrailTripped(log, ev)
	case ToolCallStarted:
		e.transcript.addBreadcrumb("function call: "+string(ev.Name), maybeParseJSON(ev.Arguments), e.now())
	case ToolCallEnded:
		e.transcript.addBreadcrumb("function call result: "+string(ev.Name), maybeParseJSON(ev.Result), e.now())
	case AgentHandoff:
		e.handoff(ctx, log, ev)
	default:
		log.Warn("ignoring unsupported event")
	}
}

func (e *Engine) historyAdded(log *slog.Logger, ev HistoryAdded) {
	item := ev.Item
	if !item.isMessage() {
		return
	}

	text := item.Text()
	if item.Role == domain.RoleUser && text == "" {
		text = domain.PlaceholderTranscribing
	}

	if details, ok := DetectGuardrailMessage(text); ok {
		e.transcript.addBreadcrumb(titleGuardrailActive, map[string]any{"details": details}, e.now())
		log.Info("guardrail correction recorded as breadcrumb", "item_id", item.ItemID)
		return
	}

	it, ok := e.transcript.get(item.ItemID)
	switch {
	case !ok:
		e.transcript.addMessage(item.ItemID, item.Role, e.agentFor(item.Role), text, e.now())
	case it.Status == domain.StatusDone:
		// Final text already committed.
		return
	case text != domain.PlaceholderTranscribing || it.Title == "":
		it.Title = text
	}

	if text != domain.PlaceholderTranscribing {
		e.forward(item.ItemID, item.Role, text)
	}
}

func (e *Engine) historyUpdated(log *slog.Logger, ev HistoryUpdated) {
	for _, item := range ev.Items {
		if !item.isMessage() {
			continue
		}
		text := item.Text()
		if text == "" {
			continue
		}
		if _, ok := DetectGuardrailMessage(text); ok {
			continue
		}

		it, ok := e.transcript.get(item.ItemID)
		switch {
		case !ok:
			e.transcript.addMessage(item.ItemID, item.Role, e.agentFor(item.Role), text, e.now())
		case it.Status == domain.StatusDone:
			observability.TranscriptEventsDropped.WithLabelValues("finalized").Inc()
			log.Debug("update after completion", "item_id", item.ItemID)
			continue
		default:
			it.Title = text
		}

		if item.Role == domain.RoleAssistant && text != domain.PlaceholderTranscribing {
			e.forward(item.ItemID, item.Role, text)
		}
	}
}

func (e *Engine) delta(log *slog.Logger, ev TranscriptionDelta) {
	it, ok := e.transcript.get(ev.ItemID)
	if !ok {
		if ev.Role == "" {
			observability.TranscriptEventsDropped.WithLabelValues("unknown_item").Inc()
			log.Debug("delta for unknown item without role", "item_id", ev.ItemID)
			return
		}
		e.transcript.addMessage(ev.ItemID, ev.Role, e.agentFor(ev.Role), ev.Delta, e.now())
		return
	}

	if it.Status == domain.StatusDone {
		observability.TranscriptEventsDropped.WithLabelValues("finalized").Inc()
		log.Debug("delta after completion", "item_id", ev.ItemID)
		return
	}
	if it.Title == domain.PlaceholderTranscribing {
		it.Title = ""
	}
	it.Title += ev.Delta
	it.Status = domain.StatusInProgress
}

func (e *Engine) completed(log *slog.Logger, ev TranscriptionCompleted) {
	final := ev.Transcript
	if strings.TrimSpace(final) == "" {
		final = domain.MarkerInaudible
	}

	role := ev.Role
	if ev.UserVoice {
		role = domain.RoleUser
	}

	it, ok := e.transcript.get(ev.ItemID)
	switch {
	case !ok && role == "":
		observability.TranscriptEventsDropped.WithLabelValues("unknown_item").Inc()
		log.Debug("completion for unknown item without role", "item_id", ev.ItemID)
		return
	case !ok:
		it = e.transcript.addMessage(ev.ItemID, role, e.agentFor(role), final, e.now())
	case it.Status == domain.StatusDone:
		observability.TranscriptEventsDropped.WithLabelValues("finalized").Inc()
		return
	default:
		it.Title = final
	}
	it.Status = domain.StatusDone

	if it.Guardrail != nil && it.Guardrail.Status == domain.StatusInProgress {
		it.Guardrail = &domain.ModerationVerdict{Status: domain.StatusDone, Category: domain.ModerationNone}
	}

	if final == domain.MarkerInaudible {
		return
	}
	// Assistant text that only ever arrived as deltas is committed here.
	fwdRole := it.Role
	if ev.UserVoice {
		fwdRole = domain.RoleUser
	}
	e.forward(it.ItemID, fwdRole, final)
}

func (e *Engine) guardrailTripped(log *slog.Logger, ev GuardrailTripped) {
	var target *domain.TranscriptItem
	if ev.ItemID != "" {
		if it, ok := e.transcript.get(ev.ItemID); ok && it.IsMessage() {
			target = it
		}
	}
	if target == nil {
		if it, ok := e.transcript.lastAssistantMessage(); ok {
			target = it
		}
	}
	if target == nil {
		observability.TranscriptEventsDropped.WithLabelValues("no_target").Inc()
		log.Warn("guardrail tripped with no assistant message to annotate")
		return
	}

	v := ev.Verdict
	v.Status = domain.StatusDone
	target.Guardrail = &v
	log.Info("guardrail verdict attached", "item_id", target.ItemID, "category", v.Category)
}

func (e *Engine) handoff(ctx context.Context, log *slog.Logger, ev AgentHandoff) {
	if e.router == nil {
		log.Warn("handoff event without a router", "to", ev.To)
		return
	}

	from := e.router.Active().ID
	if err := e.router.Handoff(ctx, ev.To); err != nil {
		data := map[string]any{"from": from, "to": ev.To, "error": err.Error()}
		if ev.From != "" && ev.From != from {
			data["claimedFrom"] = ev.From
		}
		e.transcript.addBreadcrumb(titleIllegalHandoff, data, e.now())
		return
	}
	e.transcript.addBreadcrumb(titleAgentHandoff, map[string]any{"from": from, "to": ev.To}, e.now())
}

// forward sends text to the recorder unless the same item already forwarded
// the same text.
func (e *Engine) forward(id domain.ItemID, role domain.Role, text string) {
	if e.recorder == nil {
		return
	}
	if prev, ok := e.forwarded[id]; ok && prev == text {
		return
	}
	e.forwarded[id] = text
	e.recorder.Record(role, text)
}

func (e *Engine) agentFor(role domain.Role) domain.AgentID {
	if role != domain.RoleAssistant || e.router == nil {
		return ""
	}
	return e.router.Active().ID
}

// DetectGuardrailMessage reports whether text is a guardrail correction: the
// marker followed by a JSON object. It returns the decoded object.
func DetectGuardrailMessage(text string) (map[string]any, bool) {
	i := strings.Index(text, GuardrailMarker)
	if i < 0 {
		return nil, false
	}
	rest := strings.TrimLeft(text[i+len(GuardrailMarker):], " ")
	if !strings.HasPrefix(rest, "{") {
		return nil, false
	}

	var details map[string]any
	if err := json.NewDecoder(strings.NewReader(rest)).Decode(&details); err != nil {
		return nil, false
	}
	return details, true
}

func maybeParseJSON(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	// Tool results are often a JSON document encoded as a string.
	if s, ok := v.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner
		}
	}
	return v
}
