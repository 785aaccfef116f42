// Package redis is the shared backend for multi-node deployments. Each
// scenario and profile is one JSON value; a sorted set indexes scenario names
// by creation order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

const defaultPrefix = "farum:"

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key (default: "farum:").
	Prefix string
}

// Store implements domain.ScenarioStore and domain.ProfileStore.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore connects to Redis and checks the connection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewStoreFromClient(client, cfg.Prefix), nil
}

// NewStoreFromClient wraps an existing client. Tests use it with miniredis.
func NewStoreFromClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Key helpers
func (s *Store) scenarioKey(name string) string {
	return s.prefix + "scenario:" + name
}

func (s *Store) scenarioIndexKey() string {
	return s.prefix + "scenarios"
}

func (s *Store) profileKey(userID domain.UserID) string {
	return s.prefix + "profile:" + string(userID)
}

func (s *Store) LoadScenario(ctx context.Context, name string) (*domain.Scenario, error) {
	data, err := s.client.Get(ctx, s.scenarioKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ReadError("load scenario", err)
	}
	return decodeScenario(data)
}

func decodeScenario(data []byte) (*domain.Scenario, error) {
	var sc domain.Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, domain.ReadError("decode scenario", err)
	}
	if sc.Conversations == nil {
		sc.Conversations = []*domain.Conversation{}
	}
	return &sc, nil
}

func (s *Store) SaveScenario(ctx context.Context, sc *domain.Scenario) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return domain.WriteError("encode scenario", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.scenarioKey(sc.Name), data, 0)
	// NX keeps the first-seen position in the index.
	pipe.ZAddNX(ctx, s.scenarioIndexKey(), redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: sc.Name,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.WriteError("save scenario", err)
	}
	return nil
}

const maxTxRetries = 5

// SaveConversation updates one conversation with an optimistic WATCH
// transaction, retrying when another writer touched the scenario first.
func (s *Store) SaveConversation(ctx context.Context, scenario string, conv *domain.Conversation) error {
	key := s.scenarioKey(scenario)

	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return domain.ReadError("save conversation", err)
		}
		sc, err := decodeScenario(data)
		if err != nil {
			return err
		}
		sc.PutConversation(conv)

		out, err := json.Marshal(sc)
		if err != nil {
			return domain.WriteError("encode scenario", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, update, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrStorageRead), errors.Is(err, domain.ErrStorageWrite):
			return err
		default:
			return domain.WriteError("save conversation", err)
		}
	}
	return domain.WriteError("save conversation", fmt.Errorf("scenario %q: too much contention", scenario))
}

// ListScenarios returns scenarios in creation order. Index entries whose
// value has disappeared are skipped.
func (s *Store) ListScenarios(ctx context.Context) ([]*domain.Scenario, error) {
	names, err := s.client.ZRange(ctx, s.scenarioIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, domain.ReadError("list scenarios", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.scenarioKey(n)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.ReadError("list scenarios", err)
	}

	out := make([]*domain.Scenario, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		sc, err := decodeScenario([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	names, err := s.client.ZRange(ctx, s.scenarioIndexKey(), 0, -1).Result()
	if err != nil {
		return domain.WriteError("clear scenarios", err)
	}

	keys := make([]string, 0, len(names)+1)
	for _, n := range names {
		keys = append(keys, s.scenarioKey(n))
	}
	keys = append(keys, s.scenarioIndexKey())

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return domain.WriteError("clear scenarios", err)
	}
	return nil
}

func (s *Store) LoadProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	data, err := s.client.Get(ctx, s.profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ReadError("load profile", err)
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, domain.ReadError("decode profile", err)
	}
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, userID domain.UserID, p *domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return domain.WriteError("encode profile", err)
	}
	if err := s.client.Set(ctx, s.profileKey(userID), data, 0).Err(); err != nil {
		return domain.WriteError("save profile", err)
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID domain.UserID) error {
	if err := s.client.Del(ctx, s.profileKey(userID)).Err(); err != nil {
		return domain.WriteError("delete profile", err)
	}
	return nil
}
