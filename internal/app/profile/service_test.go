package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/PabloGalante/farum-voice/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-voice/internal/domain"
)

func newTestService() (*Service, *memory.ProfileStore) {
	store := memory.NewProfileStore()
	svc := NewService(store)
	t := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		t = t.Add(time.Second)
		return t
	}
	return svc, store
}

func TestFetchProfileCreatesAndPersistsDefault(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	p := svc.FetchProfile(ctx, "local")
	assert.Empty(t, p.Name)
	assert.False(t, p.Consent)
	assert.NotNil(t, p.Progress.Entries)
	assert.NotNil(t, p.Memory.Entries)

	stored, err := store.LoadProfile(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, p, stored)
}

func TestFetchProfileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	first := svc.FetchProfile(ctx, "local")
	second := svc.FetchProfile(ctx, "local")
	assert.Equal(t, first, second)
}

func TestTimestampsKeepMicrosecondPrecision(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	svc.now = func() time.Time {
		return time.Date(2026, 4, 2, 10, 0, 0, 123456789, time.FixedZone("ART", -3*3600))
	}
	want := time.Date(2026, 4, 2, 13, 0, 0, 123456000, time.UTC)

	first := svc.FetchProfile(ctx, "local")
	assert.Equal(t, want, first.Progress.LastUpdated)
	assert.Equal(t, want, first.Memory.LastUpdated)

	stored, err := store.LoadProfile(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, first, stored)
	assert.Equal(t, first, svc.FetchProfile(ctx, "local"))

	entry, err := svc.AppendProgress(ctx, "local", "Walked outside", "cbtTherapistAgent", nil)
	require.NoError(t, err)
	assert.Equal(t, want, entry.Timestamp)
	assert.Equal(t, want, svc.FetchProfile(ctx, "local").Progress.LastUpdated)
}

func TestUpdateIdentityIsPartial(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	name := "Alex"
	pronouns := "she/her"
	_, err := svc.UpdateIdentity(ctx, "local", domain.IdentityUpdate{Name: &name, Pronouns: &pronouns})
	require.NoError(t, err)

	consent := true
	p, err := svc.UpdateIdentity(ctx, "local", domain.IdentityUpdate{Consent: &consent})
	require.NoError(t, err)
	assert.Equal(t, "Alex", p.Name)
	assert.Equal(t, "she/her", p.Pronouns)
	assert.True(t, p.Consent)

	assert.Equal(t, p, svc.FetchProfile(ctx, "local"))
}

func TestAppendProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	entry, err := svc.AppendProgress(ctx, "local", "  Practiced box breathing  ", "cbtTherapistAgent", []string{"breathing", "homework"})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "Practiced box breathing", entry.Text)
	assert.Equal(t, time.UTC, entry.Timestamp.Location())

	p := svc.FetchProfile(ctx, "local")
	require.Len(t, p.Progress.Entries, 1)
	got := p.Progress.Entries[0]
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, entry.Text, got.Text)
	assert.Equal(t, entry.Agent, got.Agent)
	assert.Equal(t, entry.Tags, got.Tags)
	assert.True(t, p.Progress.LastUpdated.Equal(entry.Timestamp))
	assert.Empty(t, p.Memory.Entries)
}

func TestAppendMemoryUsesSeparateTimeline(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	entry, err := svc.AppendMemory(ctx, "local", "Has a dog named Miso", "humanisticTherapistAgent", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, entry.Tags)

	p := svc.FetchProfile(ctx, "local")
	require.Len(t, p.Memory.Entries, 1)
	assert.Empty(t, p.Progress.Entries)
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	tests := []struct {
		name  string
		text  string
		agent domain.AgentID
	}{
		{"empty text", "", "cbtTherapistAgent"},
		{"blank text", "   ", "cbtTherapistAgent"},
		{"empty agent", "note", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AppendProgress(ctx, "local", tt.text, tt.agent, []string{"x"})
			assert.ErrorIs(t, err, domain.ErrInvalidEntry)
		})
	}

	_, err := store.LoadProfile(ctx, "local")
	assert.ErrorIs(t, err, domain.ErrNotFound, "rejected entries must not touch the store")
}

type corruptStore struct {
	*memory.ProfileStore
	saves int
}

func (s *corruptStore) LoadProfile(context.Context, domain.UserID) (*domain.Profile, error) {
	return nil, domain.ReadError("load profile", errors.New("invalid character '}' looking for beginning of value"))
}

func (s *corruptStore) SaveProfile(ctx context.Context, id domain.UserID, p *domain.Profile) error {
	s.saves++
	return s.ProfileStore.SaveProfile(ctx, id, p)
}

func TestReadErrorFallsBackWithoutOverwriting(t *testing.T) {
	ctx := context.Background()
	store := &corruptStore{ProfileStore: memory.NewProfileStore()}
	svc := NewService(store)

	p := svc.FetchProfile(ctx, "local")
	require.NotNil(t, p)
	assert.Empty(t, p.Progress.Entries)

	_, err := svc.AppendMemory(ctx, "local", "fact", "greetAgent", nil)
	assert.ErrorIs(t, err, domain.ErrStorageRead)

	name := "Kai"
	_, err = svc.UpdateIdentity(ctx, "local", domain.IdentityUpdate{Name: &name})
	assert.ErrorIs(t, err, domain.ErrStorageRead)

	assert.Zero(t, store.saves)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.AppendProgress(ctx, "local", "milestone", "cbtTherapistAgent", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "local"))

	assert.Empty(t, svc.FetchProfile(ctx, "local").Progress.Entries)
}

func TestPropertyTimelinesOnlyGrow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		svc, _ := newTestService()

		var progress, memories int
		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for range steps {
			text := rapid.StringMatching(`[a-z ]{0,12}`).Draw(rt, "text")
			var err error
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_, err = svc.AppendProgress(ctx, "u", text, "cbtTherapistAgent", nil)
				if err == nil {
					progress++
				}
			case 1:
				_, err = svc.AppendMemory(ctx, "u", text, "cbtTherapistAgent", nil)
				if err == nil {
					memories++
				}
			case 2:
				name := text
				_, err = svc.UpdateIdentity(ctx, "u", domain.IdentityUpdate{Name: &name})
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidEntry) {
				rt.Fatalf("unexpected error: %v", err)
			}

			p := svc.FetchProfile(ctx, "u")
			if len(p.Progress.Entries) != progress || len(p.Memory.Entries) != memories {
				rt.Fatalf("timelines = %d/%d, want %d/%d",
					len(p.Progress.Entries), len(p.Memory.Entries), progress, memories)
			}
		}
	})
}
