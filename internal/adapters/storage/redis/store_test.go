package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-voice/internal/adapters/storage/redis"
	"github.com/PabloGalante/farum-voice/internal/adapters/storage/storagetest"
	"github.com/PabloGalante/farum-voice/internal/domain"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := redis.NewStoreFromClient(client, "test:")

	t.Cleanup(func() {
		_ = store.Close()
	})
	return mr, store
}

func TestScenarioStore(t *testing.T) {
	storagetest.RunScenarioStore(t, func(t *testing.T) domain.ScenarioStore {
		_, s := setupMiniredis(t)
		return s
	})
}

func TestProfileStore(t *testing.T) {
	storagetest.RunProfileStore(t, func(t *testing.T) domain.ProfileStore {
		_, s := setupMiniredis(t)
		return s
	})
}

func TestKeysUsePrefix(t *testing.T) {
	ctx := context.Background()
	mr, s := setupMiniredis(t)

	require.NoError(t, s.SaveScenario(ctx, &domain.Scenario{ID: "scenario_1", Name: "therapy"}))
	require.NoError(t, s.SaveProfile(ctx, "local", domain.NewProfile(domain.Timestamp{})))

	assert.True(t, mr.Exists("test:scenario:therapy"))
	assert.True(t, mr.Exists("test:profile:local"))
	members, err := mr.ZMembers("test:scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{"therapy"}, members)
}

func TestCorruptValueIsReadError(t *testing.T) {
	ctx := context.Background()
	mr, s := setupMiniredis(t)

	require.NoError(t, mr.Set("test:profile:local", "{not json"))
	_, err := s.LoadProfile(ctx, "local")
	assert.ErrorIs(t, err, domain.ErrStorageRead)
}

func TestUnavailableServerIsStorageError(t *testing.T) {
	ctx := context.Background()
	mr, s := setupMiniredis(t)
	mr.SetError("LOADING Redis is loading the dataset in memory")

	_, err := s.LoadScenario(ctx, "therapy")
	assert.ErrorIs(t, err, domain.ErrStorageRead)
	assert.ErrorIs(t, s.SaveScenario(ctx, &domain.Scenario{Name: "therapy"}), domain.ErrStorageWrite)
}
