package transcript

import (
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// Transcript is the ordered, UI-facing list of messages and breadcrumbs of
// one session. It is not safe for concurrent use; Engine guards it.
type Transcript struct {
	items []*domain.TranscriptItem
	index map[domain.ItemID]*domain.TranscriptItem
}

func NewTranscript() *Transcript {
	return &Transcript{index: make(map[domain.ItemID]*domain.TranscriptItem)}
}

func (t *Transcript) get(id domain.ItemID) (*domain.TranscriptItem, bool) {
	it, ok := t.index[id]
	return it, ok
}

func (t *Transcript) addMessage(id domain.ItemID, role domain.Role, agent domain.AgentID, text string, now time.Time) *domain.TranscriptItem {
	it := &domain.TranscriptItem{
		ItemID:    id,
		Kind:      domain.ItemMessage,
		Role:      role,
		Agent:     agent,
		Title:     text,
		Status:    domain.StatusInProgress,
		CreatedAt: now,
	}
	if role == domain.RoleAssistant {
		it.Guardrail = &domain.ModerationVerdict{Status: domain.StatusInProgress}
	}
	t.items = append(t.items, it)
	t.index[id] = it
	return it
}

func (t *Transcript) addBreadcrumb(title string, data any, now time.Time) *domain.TranscriptItem {
	it := &domain.TranscriptItem{
		ItemID:    domain.ItemID("breadcrumb-" + uuid.NewString()),
		Kind:      domain.ItemBreadcrumb,
		Title:     title,
		Data:      data,
		Status:    domain.StatusDone,
		CreatedAt: now,
	}
	t.items = append(t.items, it)
	t.index[it.ItemID] = it
	return it
}

// lastAssistantMessage returns the most recent assistant message.
func (t *Transcript) lastAssistantMessage() (*domain.TranscriptItem, bool) {
	for i := len(t.items) - 1; i >= 0; i-- {
		if it := t.items[i]; it.IsMessage() && it.Role == domain.RoleAssistant {
			return it, true
		}
	}
	return nil, false
}

// Items returns a copy of every item in arrival order.
func (t *Transcript) Items() []domain.TranscriptItem {
	out := make([]domain.TranscriptItem, 0, len(t.items))
	for _, it := range t.items {
		c := *it
		if it.Guardrail != nil {
			g := *it.Guardrail
			c.Guardrail = &g
		}
		out = append(out, c)
	}
	return out
}

// Messages returns only the dialogue messages, in arrival order.
func (t *Transcript) Messages() []domain.TranscriptItem {
	var out []domain.TranscriptItem
	for _, it := range t.Items() {
		if it.IsMessage() {
			out = append(out, it)
		}
	}
	return out
}

// Breadcrumbs returns only the annotations, in arrival order.
func (t *Transcript) Breadcrumbs() []domain.TranscriptItem {
	var out []domain.TranscriptItem
	for _, it := range t.Items() {
		if !it.IsMessage() {
			out = append(out, it)
		}
	}
	return out
}
