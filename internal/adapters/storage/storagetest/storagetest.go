// Package storagetest holds the behavior every storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// RunScenarioStore exercises a domain.ScenarioStore. newStore must return an
// empty store.
func RunScenarioStore(t *testing.T, newStore func(t *testing.T) domain.ScenarioStore) {
	t.Helper()

	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadScenario(context.Background(), "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		in := sampleScenario("therapy", 2)
		require.NoError(t, s.SaveScenario(ctx, in))

		out, err := s.LoadScenario(ctx, "therapy")
		require.NoError(t, err)
		assertScenarioEqual(t, in, out)
	})

	t.Run("overwrite", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		sc := sampleScenario("therapy", 1)
		require.NoError(t, s.SaveScenario(ctx, sc))

		sc.Conversations[0].Messages = append(sc.Conversations[0].Messages,
			domain.Message{Role: domain.RoleUser, Content: "one more"})
		sc.Conversations = append(sc.Conversations, &domain.Conversation{
			ID:        "conv_late",
			StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Messages:  []domain.Message{},
		})
		require.NoError(t, s.SaveScenario(ctx, sc))

		out, err := s.LoadScenario(ctx, "therapy")
		require.NoError(t, err)
		assertScenarioEqual(t, sc, out)
	})

	t.Run("loaded copies are detached", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.SaveScenario(ctx, sampleScenario("therapy", 1)))

		out, err := s.LoadScenario(ctx, "therapy")
		require.NoError(t, err)
		out.Conversations[0].Messages = nil

		again, err := s.LoadScenario(ctx, "therapy")
		require.NoError(t, err)
		assert.Len(t, again.Conversations[0].Messages, 2)
	})

	t.Run("save conversation", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		conv := &domain.Conversation{
			ID:        "conv_new",
			StartedAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
			Messages:  []domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
		}
		assert.ErrorIs(t, s.SaveConversation(ctx, "therapy", conv), domain.ErrNotFound)

		sc := sampleScenario("therapy", 2)
		require.NoError(t, s.SaveScenario(ctx, sc))

		require.NoError(t, s.SaveConversation(ctx, "therapy", conv))
		conv.Messages = append(conv.Messages, domain.Message{Role: domain.RoleAssistant, Content: "Hello"})
		require.NoError(t, s.SaveConversation(ctx, "therapy", conv))

		sc.Conversations = append(sc.Conversations, conv)
		out, err := s.LoadScenario(ctx, "therapy")
		require.NoError(t, err)
		assertScenarioEqual(t, sc, out)
	})

	// More conversations than a single Firestore transaction can write.
	t.Run("save conversation in a large scenario", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.SaveScenario(ctx, sampleScenario("busy", 1)))

		const n = 510
		base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < n; i++ {
			require.NoError(t, s.SaveConversation(ctx, "busy", &domain.Conversation{
				ID:        domain.ConversationID(fmt.Sprintf("conv_%04d", i)),
				StartedAt: base.Add(time.Duration(i) * time.Minute),
				Messages:  []domain.Message{},
			}))
		}

		last := &domain.Conversation{
			ID:        domain.ConversationID(fmt.Sprintf("conv_%04d", n-1)),
			StartedAt: base.Add(time.Duration(n-1) * time.Minute),
			Messages:  []domain.Message{{Role: domain.RoleUser, Content: "still recording"}},
		}
		require.NoError(t, s.SaveConversation(ctx, "busy", last))

		out, err := s.LoadScenario(ctx, "busy")
		require.NoError(t, err)
		require.Len(t, out.Conversations, n+1)
		got := out.Conversation(last.ID)
		require.NotNil(t, got)
		assert.Equal(t, last.Messages, got.Messages)
	})

	t.Run("list and clear", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.SaveScenario(ctx, sampleScenario("a", 1)))
		require.NoError(t, s.SaveScenario(ctx, sampleScenario("b", 2)))

		list, err := s.ListScenarios(ctx)
		require.NoError(t, err)
		names := make([]string, 0, len(list))
		for _, sc := range list {
			names = append(names, sc.Name)
		}
		assert.ElementsMatch(t, []string{"a", "b"}, names)

		require.NoError(t, s.ClearAll(ctx))

		list, err = s.ListScenarios(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
		_, err = s.LoadScenario(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

// RunProfileStore exercises a domain.ProfileStore.
func RunProfileStore(t *testing.T, newStore func(t *testing.T) domain.ProfileStore) {
	t.Helper()

	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadProfile(context.Background(), "someone")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("save load delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		now := time.Date(2026, 2, 14, 18, 30, 0, 0, time.UTC)
		p := domain.NewProfile(now)
		p.Name = "Sam"
		p.Pronouns = "they/them"
		p.Consent = true
		p.Progress.Append(domain.TimelineEntry{
			ID: "p-1", Timestamp: now, Text: "Completed a thought record", Agent: "cbtTherapistAgent",
			Tags: []string{"cbt", "homework"},
		})
		p.Memory.Append(domain.TimelineEntry{
			ID: "m-1", Timestamp: now, Text: "Prefers concrete homework", Agent: "cbtTherapistAgent",
			Tags: []string{},
		})
		require.NoError(t, s.SaveProfile(ctx, "sam", p))

		got, err := s.LoadProfile(ctx, "sam")
		require.NoError(t, err)
		assert.Equal(t, "Sam", got.Name)
		assert.Equal(t, "they/them", got.Pronouns)
		assert.True(t, got.Consent)
		require.Len(t, got.Progress.Entries, 1)
		assert.Equal(t, "p-1", got.Progress.Entries[0].ID)
		assert.Equal(t, []string{"cbt", "homework"}, got.Progress.Entries[0].Tags)
		assert.True(t, got.Progress.LastUpdated.Equal(now))
		require.Len(t, got.Memory.Entries, 1)
		assert.Equal(t, domain.AgentID("cbtTherapistAgent"), got.Memory.Entries[0].Agent)

		_, err = s.LoadProfile(ctx, "someone-else")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, s.DeleteProfile(ctx, "sam"))
		_, err = s.LoadProfile(ctx, "sam")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func sampleScenario(name string, convs int) *domain.Scenario {
	sc := &domain.Scenario{ID: "scenario_" + name, Name: name}
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < convs; i++ {
		sc.Conversations = append(sc.Conversations, &domain.Conversation{
			ID:        domain.ConversationID("conv_" + name + string(rune('a'+i))),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Messages: []domain.Message{
				{Role: domain.RoleUser, Content: "Hi"},
				{Role: domain.RoleAssistant, Content: "Hello, how are you feeling today?"},
			},
		})
	}
	return sc
}

func assertScenarioEqual(t *testing.T, want, got *domain.Scenario) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	require.Len(t, got.Conversations, len(want.Conversations))
	for i, w := range want.Conversations {
		g := got.Conversations[i]
		assert.Equal(t, w.ID, g.ID)
		assert.True(t, w.StartedAt.Equal(g.StartedAt), "started_at %v != %v", w.StartedAt, g.StartedAt)
		assert.Equal(t, len(w.Messages), len(g.Messages))
		for j := range w.Messages {
			assert.Equal(t, w.Messages[j], g.Messages[j])
		}
	}
}
