package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

// DedupWindow is how many of the most recent messages of a conversation are
// checked for an identical (role, text) pair before appending.
const DedupWindow = 5

const (
	noHistoryFound     = "No previous conversation history found."
	noHistoryAvailable = "No previous conversation history available."
)

// Service is the scenario-keyed conversation log. It owns the active
// conversation of each scenario and delegates persistence to a
// domain.ScenarioStore.
type Service struct {
	store domain.ScenarioStore
	now   func() time.Time

	mu     sync.Mutex
	active map[string]domain.ConversationID
}

func NewService(store domain.ScenarioStore) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		active: make(map[string]domain.ConversationID),
	}
}

// StartConversation opens a new conversation under scenario, creating the
// scenario bucket on first use, and makes it the scenario's active
// conversation for Append.
func (s *Service) StartConversation(ctx context.Context, scenario string) (domain.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.openLocked(ctx, scenario)
	if err != nil {
		return "", err
	}
	s.active[scenario] = id
	return id, nil
}

// OpenConversation opens a new conversation without making it the active one.
// Writers that hold on to the returned id use AppendTo, so several of them
// can record into one scenario at the same time.
func (s *Service) OpenConversation(ctx context.Context, scenario string) (domain.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx, scenario)
}

func (s *Service) openLocked(ctx context.Context, scenario string) (domain.ConversationID, error) {
	log := observability.LoggerFromContext(ctx).With("scenario", scenario)

	sc, created, err := s.loadOrCreate(ctx, scenario)
	if err != nil {
		log.Error("failed to load scenario", "error", err)
		return "", err
	}

	conv := &domain.Conversation{
		ID:        newConversationID(),
		StartedAt: s.now().UTC(),
		Messages:  []domain.Message{},
	}
	if err := s.save(ctx, sc, created, conv); err != nil {
		log.Error("failed to save conversation", "error", err)
		return "", err
	}

	log.Info("conversation started", "conversation_id", conv.ID)
	return conv.ID, nil
}

// Append adds a message to the active conversation of scenario, opening one if
// none is active. It returns domain.ErrDuplicateMessage when the same
// (role, text) pair is among the last DedupWindow messages, and
// domain.ErrEmptyMessage when the trimmed text is empty.
func (s *Service) Append(ctx context.Context, scenario string, role domain.Role, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[scenario]
	if !ok {
		var err error
		if id, err = s.openLocked(ctx, scenario); err != nil {
			observability.HistoryMessages.WithLabelValues("error").Inc()
			return err
		}
		s.active[scenario] = id
	}
	return s.appendLocked(ctx, scenario, id, role, trimmed)
}

// AppendTo adds a message to conversation id of scenario, with the same
// validation and duplicate check as Append. The active conversation is not
// consulted.
func (s *Service) AppendTo(ctx context.Context, scenario string, id domain.ConversationID, role domain.Role, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, scenario, id, role, trimmed)
}

func (s *Service) appendLocked(ctx context.Context, scenario string, id domain.ConversationID, role domain.Role, text string) error {
	log := observability.LoggerFromContext(ctx).With("scenario", scenario, "role", role, "conversation_id", id)

	sc, created, err := s.loadOrCreate(ctx, scenario)
	if err != nil {
		observability.HistoryMessages.WithLabelValues("error").Inc()
		return err
	}

	conv := sc.Conversation(id)
	if conv == nil {
		// The store was cleared or replaced underneath us.
		log.Warn("conversation missing, recreating it")
		conv = &domain.Conversation{ID: id, StartedAt: s.now().UTC(), Messages: []domain.Message{}}
	}

	if IsDuplicate(conv.Messages, role, text) {
		observability.HistoryMessages.WithLabelValues("duplicate").Inc()
		log.Debug("skipping duplicate message", "text", preview(text))
		return domain.ErrDuplicateMessage
	}

	conv.Messages = append(conv.Messages, domain.Message{Role: role, Content: text})
	if err := s.save(ctx, sc, created, conv); err != nil {
		observability.HistoryMessages.WithLabelValues("error").Inc()
		log.Error("failed to save message", "error", err)
		return err
	}

	observability.HistoryMessages.WithLabelValues("appended").Inc()
	log.Debug("message appended", "text", preview(text))
	return nil
}

// save writes conv alone when the scenario already exists. A new scenario, or
// one that vanished since it was loaded, is written holding just conv.
func (s *Service) save(ctx context.Context, sc *domain.Scenario, created bool, conv *domain.Conversation) error {
	if !created {
		err := s.store.SaveConversation(ctx, sc.Name, conv)
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return s.store.SaveScenario(ctx, &domain.Scenario{
		ID:            sc.ID,
		Name:          sc.Name,
		Conversations: []*domain.Conversation{conv},
	})
}

// IsDuplicate reports whether (role, text) appears in the last DedupWindow
// messages.
func IsDuplicate(msgs []domain.Message, role domain.Role, text string) bool {
	start := max(len(msgs)-DedupWindow, 0)
	for _, m := range msgs[start:] {
		if m.Role == role && m.Content == text {
			return true
		}
	}
	return false
}

// EndConversation closes the active conversation of scenario. The next Append
// opens a fresh one.
func (s *Service) EndConversation(ctx context.Context, scenario string) {
	s.mu.Lock()
	id, ok := s.active[scenario]
	delete(s.active, scenario)
	s.mu.Unlock()

	if ok {
		observability.LoggerFromContext(ctx).Info("conversation ended", "scenario", scenario, "conversation_id", id)
	}
}

// ActiveConversation returns the open conversation of scenario, if any.
func (s *Service) ActiveConversation(scenario string) (domain.ConversationID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[scenario]
	return id, ok
}

// RecentMessages merges every conversation of scenario in start-time order and
// returns the last limit messages. limit <= 0 returns all of them.
func (s *Service) RecentMessages(ctx context.Context, scenario string, limit int) ([]domain.Message, error) {
	msgs, _, err := s.recent(ctx, scenario, limit)
	return msgs, err
}

func (s *Service) recent(ctx context.Context, scenario string, limit int) ([]domain.Message, int, error) {
	sc, err := s.store.LoadScenario(ctx, scenario)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Message{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	convs := make([]*domain.Conversation, len(sc.Conversations))
	copy(convs, sc.Conversations)
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].StartedAt.Before(convs[j].StartedAt)
	})

	var all []domain.Message
	for _, c := range convs {
		all = append(all, c.Messages...)
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	if all == nil {
		all = []domain.Message{}
	}
	return all, len(sc.Conversations), nil
}

// FormattedHistory renders RecentMessages for an LLM context window.
func (s *Service) FormattedHistory(ctx context.Context, scenario string, limit int) (string, error) {
	msgs, convCount, err := s.recent(ctx, scenario, limit)
	if err != nil {
		return "", err
	}
	return formatHistory(msgs, convCount), nil
}

func formatHistory(msgs []domain.Message, convCount int) string {
	if len(msgs) == 0 {
		return noHistoryFound
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Previous conversation history from %d conversation(s) (%d recent messages):\n", convCount, len(msgs))
	for i, m := range msgs {
		speaker := "Assistant"
		if m.Role == domain.RoleUser {
			speaker = "User"
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, speaker, m.Content)
	}
	b.WriteString("\n\nEnd of history.")
	return b.String()
}

// FetchHistory is the never-failing read used by the fetchHistoryContext tool.
// Any storage error degrades to an explicit "no history available" result.
func (s *Service) FetchHistory(ctx context.Context, scenario string, limit int) domain.HistorySummary {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}

	msgs, convCount, err := s.recent(ctx, scenario, limit)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to fetch history", "scenario", scenario, "error", err)
		return domain.HistorySummary{
			Success:     false,
			HistoryText: noHistoryAvailable,
			Summary:     "Unable to retrieve conversation history.",
			Scenario:    scenario,
		}
	}

	return domain.HistorySummary{
		Success:      true,
		HistoryText:  formatHistory(msgs, convCount),
		MessageCount: len(msgs),
		Summary:      fmt.Sprintf("Retrieved %d previous messages from %s conversations.", len(msgs), scenario),
		Scenario:     scenario,
	}
}

// Summaries lists conversation and message counts per scenario.
func (s *Service) Summaries(ctx context.Context) ([]domain.ScenarioSummary, error) {
	scenarios, err := s.store.ListScenarios(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScenarioSummary, 0, len(scenarios))
	for _, sc := range scenarios {
		total := 0
		for _, c := range sc.Conversations {
			total += len(c.Messages)
		}
		out = append(out, domain.ScenarioSummary{
			ScenarioName:      sc.Name,
			ConversationCount: len(sc.Conversations),
			TotalMessages:     total,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioName < out[j].ScenarioName })
	return out, nil
}

// ClearAll irreversibly erases every scenario and forgets active conversations.
func (s *Service) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ClearAll(ctx); err != nil {
		return err
	}
	clear(s.active)
	observability.LoggerFromContext(ctx).Info("cleared all conversation histories")
	return nil
}

// loadOrCreate reports created=true when the scenario is not in the store yet.
func (s *Service) loadOrCreate(ctx context.Context, scenario string) (*domain.Scenario, bool, error) {
	sc, err := s.store.LoadScenario(ctx, scenario)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Scenario{
			ID:            "scenario_" + uuid.NewString(),
			Name:          scenario,
			Conversations: []*domain.Conversation{},
		}, true, nil
	}
	return sc, false, err
}

func newConversationID() domain.ConversationID {
	return domain.ConversationID("conv_" + uuid.NewString())
}

// preview shortens s to at most 50 runes for log lines.
func preview(s string) string {
	const n = 50
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
