package transcript

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// Wire event types. The realtime transcription types are accepted as sent by
// the speech backend; the others are emitted by the agent runtime.
const (
	TypeHistoryAdded           = "history_added"
	TypeHistoryUpdated         = "history_updated"
	TypeTranscriptionDelta     = "transcription_delta"
	TypeTranscriptionCompleted = "transcription_completed"
	TypeGuardrailTripped       = "guardrail_tripped"
	TypeToolCallStarted        = "agent_tool_start"
	TypeToolCallEnded          = "agent_tool_end"
	TypeAgentHandoff           = "agent_handoff"

	TypeInputAudioDelta     = "conversation.item.input_audio_transcription.delta"
	TypeInputAudioCompleted = "conversation.item.input_audio_transcription.completed"
	TypeOutputAudioDelta    = "response.audio_transcript.delta"
	TypeOutputAudioDone     = "response.audio_transcript.done"
)

// Event is one of the closed set of decoded transcript events.
type Event interface {
	Kind() string
}

// ContentPart is one fragment of a history item's content.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Item is a conversation history item as carried by added/updated events.
type Item struct {
	ItemID  domain.ItemID `json:"itemId"`
	Type    string        `json:"type"`
	Role    domain.Role   `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

func (it Item) isMessage() bool { return it.Type == "message" }

// Text joins the text-bearing fragments of the item with newlines. Text
// fragments contribute their text and audio fragments their transcript.
func (it Item) Text() string {
	parts := make([]string, 0, len(it.Content))
	for _, c := range it.Content {
		var s string
		switch c.Type {
		case "input_text", "text", "output_text":
			s = c.Text
		case "audio", "input_audio":
			s = c.Transcript
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

type HistoryAdded struct {
	Item Item
}

type HistoryUpdated struct {
	Items []Item
}

// TranscriptionDelta carries incremental text for a streaming item. Role is
// empty when the transport did not say.
type TranscriptionDelta struct {
	ItemID domain.ItemID
	Role   domain.Role
	Delta  string
}

// TranscriptionCompleted carries the final text of an item. UserVoice is set
// for completions of the user's input audio transcription.
type TranscriptionCompleted struct {
	ItemID     domain.ItemID
	Role       domain.Role
	Transcript string
	UserVoice  bool
}

// GuardrailTripped attaches a moderation verdict to ItemID, or to the most
// recent assistant message when ItemID is empty.
type GuardrailTripped struct {
	ItemID  domain.ItemID
	Verdict domain.ModerationVerdict
}

type ToolCallStarted struct {
	Name      domain.ToolName
	Arguments json.RawMessage
}

type ToolCallEnded struct {
	Name   domain.ToolName
	Result json.RawMessage
}

type AgentHandoff struct {
	From domain.AgentID
	To   domain.AgentID
}

func (HistoryAdded) Kind() string           { return TypeHistoryAdded }
func (HistoryUpdated) Kind() string         { return TypeHistoryUpdated }
func (TranscriptionDelta) Kind() string     { return TypeTranscriptionDelta }
func (TranscriptionCompleted) Kind() string { return TypeTranscriptionCompleted }
func (GuardrailTripped) Kind() string       { return TypeGuardrailTripped }
func (ToolCallStarted) Kind() string        { return TypeToolCallStarted }
func (ToolCallEnded) Kind() string          { return TypeToolCallEnded }
func (AgentHandoff) Kind() string           { return TypeAgentHandoff }

// envelope is the union of every field any event type may carry.
type envelope struct {
	Type string `json:"type"`

	Item  *Item  `json:"item"`
	Items []Item `json:"items"`

	ItemID     domain.ItemID `json:"item_id"`
	ItemIDAlt  domain.ItemID `json:"itemId"`
	Role       string        `json:"role"`
	Delta      *string       `json:"delta"`
	Transcript string        `json:"transcript"`

	Result    json.RawMessage `json:"result"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`

	From domain.AgentID `json:"from"`
	To   domain.AgentID `json:"to"`
}

func (e envelope) itemID() domain.ItemID {
	if e.ItemID != "" {
		return e.ItemID
	}
	return e.ItemIDAlt
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedEvent, fmt.Sprintf(format, args...))
}

// Decode parses one wire event. Missing or mistyped fields yield
// domain.ErrMalformedEvent.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("%v", err)
	}

	switch env.Type {
	case TypeHistoryAdded:
		if env.Item == nil {
			return nil, malformed("%s: missing item", env.Type)
		}
		if err := validateItem(*env.Item); err != nil {
			return nil, err
		}
		return HistoryAdded{Item: *env.Item}, nil

	case TypeHistoryUpdated:
		if env.Items == nil {
			return nil, malformed("%s: missing items", env.Type)
		}
		for _, it := range env.Items {
			if err := validateItem(it); err != nil {
				return nil, err
			}
		}
		return HistoryUpdated{Items: env.Items}, nil

	case TypeTranscriptionDelta, TypeInputAudioDelta, TypeOutputAudioDelta:
		id := env.itemID()
		if id == "" {
			return nil, malformed("%s: missing item_id", env.Type)
		}
		if env.Delta == nil {
			return nil, malformed("%s: missing delta", env.Type)
		}
		role, err := eventRole(env)
		if err != nil {
			return nil, err
		}
		return TranscriptionDelta{ItemID: id, Role: role, Delta: *env.Delta}, nil

	case TypeTranscriptionCompleted, TypeInputAudioCompleted, TypeOutputAudioDone:
		id := env.itemID()
		if id == "" {
			return nil, malformed("%s: missing item_id", env.Type)
		}
		role, err := eventRole(env)
		if err != nil {
			return nil, err
		}
		return TranscriptionCompleted{
			ItemID:     id,
			Role:       role,
			Transcript: env.Transcript,
			UserVoice:  env.Type == TypeInputAudioCompleted,
		}, nil

	case TypeGuardrailTripped:
		verdict, ok := extractModeration(env.Result)
		if !ok {
			return nil, malformed("%s: no moderation verdict in result", env.Type)
		}
		return GuardrailTripped{ItemID: env.itemID(), Verdict: verdict}, nil

	case TypeToolCallStarted:
		if env.Name == "" {
			return nil, malformed("%s: missing name", env.Type)
		}
		return ToolCallStarted{Name: domain.ToolName(env.Name), Arguments: env.Arguments}, nil

	case TypeToolCallEnded:
		if env.Name == "" {
			return nil, malformed("%s: missing name", env.Type)
		}
		return ToolCallEnded{Name: domain.ToolName(env.Name), Result: env.Result}, nil

	case TypeAgentHandoff:
		if env.To == "" {
			return nil, malformed("%s: missing to", env.Type)
		}
		return AgentHandoff{From: env.From, To: env.To}, nil

	case "":
		return nil, malformed("missing type")
	default:
		return nil, malformed("unknown type %q", env.Type)
	}
}

func validateItem(it Item) error {
	if it.ItemID == "" {
		return malformed("item without itemId")
	}
	if it.Type == "" {
		return malformed("item %s without type", it.ItemID)
	}
	if it.isMessage() {
		if _, ok := domain.ParseRole(string(it.Role)); !ok {
			return malformed("message %s with role %q", it.ItemID, it.Role)
		}
	}
	return nil
}

// eventRole infers the role of a delta or completion from its wire type,
// falling back to an explicit role field.
func eventRole(env envelope) (domain.Role, error) {
	switch env.Type {
	case TypeInputAudioDelta, TypeInputAudioCompleted:
		return domain.RoleUser, nil
	case TypeOutputAudioDelta, TypeOutputAudioDone:
		return domain.RoleAssistant, nil
	}
	if env.Role == "" {
		return "", nil
	}
	role, ok := domain.ParseRole(env.Role)
	if !ok {
		return "", malformed("%s: unknown role %q", env.Type, env.Role)
	}
	return role, nil
}

// extractModeration finds the object carrying moderationCategory, looking
// through outputInfo, output and result wrappers.
func extractModeration(raw json.RawMessage) (domain.ModerationVerdict, bool) {
	for depth := 0; depth < 8 && len(raw) > 0; depth++ {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return domain.ModerationVerdict{}, false
		}

		if cat, ok := obj["moderationCategory"]; ok {
			var v struct {
				Category  string `json:"moderationCategory"`
				Rationale string `json:"moderationRationale"`
				TestText  string `json:"testText"`
			}
			if err := json.Unmarshal(raw, &v); err != nil {
				return domain.ModerationVerdict{}, false
			}
			if v.Category == "" || string(cat) == "null" {
				v.Category = domain.ModerationNone
			}
			return domain.ModerationVerdict{
				Status:    domain.StatusDone,
				Category:  v.Category,
				Rationale: v.Rationale,
				TestText:  v.TestText,
			}, true
		}

		raw = nil
		for _, key := range []string{"outputInfo", "output", "result"} {
			if next, ok := obj[key]; ok {
				raw = next
				break
			}
		}
	}
	return domain.ModerationVerdict{}, false
}
