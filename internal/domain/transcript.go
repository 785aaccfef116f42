package domain

type ItemKind string

const (
	ItemMessage    ItemKind = "MESSAGE"
	ItemBreadcrumb ItemKind = "BREADCRUMB"
)

type ItemStatus string

const (
	StatusInProgress ItemStatus = "IN_PROGRESS"
	StatusDone       ItemStatus = "DONE"
)

const (
	// PlaceholderTranscribing stands in for a user turn whose audio is still
	// being transcribed.
	PlaceholderTranscribing = "[Transcribing...]"

	// MarkerInaudible replaces an empty final transcription.
	MarkerInaudible = "[inaudible]"
)

// ModerationVerdict is the guardrail result attached to an assistant message.
type ModerationVerdict struct {
	Status    ItemStatus `json:"status"`
	Category  string     `json:"category"`
	Rationale string     `json:"rationale"`
	TestText  string     `json:"testText,omitempty"`
}

const ModerationNone = "NONE"

// Flagged reports whether the verdict names a policy category.
func (v ModerationVerdict) Flagged() bool {
	return v.Category != "" && v.Category != ModerationNone
}

// TranscriptItem is either a dialogue message or a breadcrumb annotation.
type TranscriptItem struct {
	ItemID    ItemID             `json:"itemId"`
	Kind      ItemKind           `json:"type"`
	Role      Role               `json:"role,omitempty"`
	Agent     AgentID            `json:"agent,omitempty"`
	Title     string             `json:"title"`
	Data      any                `json:"data,omitempty"`
	Status    ItemStatus         `json:"status"`
	Guardrail *ModerationVerdict `json:"guardrailResult,omitempty"`
	CreatedAt Timestamp          `json:"createdAt"`
}

func (t TranscriptItem) IsMessage() bool { return t.Kind == ItemMessage }
