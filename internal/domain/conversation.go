package domain

// Message is one committed line of dialogue.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation groups the messages of one recorded session.
type Conversation struct {
	ID        ConversationID `json:"conversation_id"`
	StartedAt Timestamp      `json:"started_at"`
	Messages  []Message      `json:"messages"`
}

// Scenario buckets conversations recorded under one agent configuration.
type Scenario struct {
	ID            string          `json:"scenario_id"`
	Name          string          `json:"scenario_name"`
	Conversations []*Conversation `json:"conversations"`
}

// Conversation returns the conversation with the given id, or nil.
func (s *Scenario) Conversation(id ConversationID) *Conversation {
	for _, c := range s.Conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// PutConversation replaces the conversation with c's id, or appends c when the
// scenario has no such conversation.
func (s *Scenario) PutConversation(c *Conversation) {
	for i, existing := range s.Conversations {
		if existing.ID == c.ID {
			s.Conversations[i] = c
			return
		}
	}
	s.Conversations = append(s.Conversations, c)
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	out := &Scenario{
		ID:            s.ID,
		Name:          s.Name,
		Conversations: make([]*Conversation, 0, len(s.Conversations)),
	}
	for _, c := range s.Conversations {
		out.Conversations = append(out.Conversations, c.Clone())
	}
	return out
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	return &Conversation{
		ID:        c.ID,
		StartedAt: c.StartedAt,
		Messages:  msgs,
	}
}

// ScenarioSummary is a per-scenario count used by admin listings.
type ScenarioSummary struct {
	ScenarioName      string `json:"scenarioName"`
	ConversationCount int    `json:"conversationCount"`
	TotalMessages     int    `json:"totalMessages"`
}

// HistorySummary is what fetchHistoryContext hands back to an agent.
type HistorySummary struct {
	Success      bool   `json:"success"`
	HistoryText  string `json:"historyText"`
	MessageCount int    `json:"messageCount"`
	Summary      string `json:"summary"`
	Scenario     string `json:"scenario"`
}
