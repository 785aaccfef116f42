// Package sqlite is the single-node durable backend. Scenarios and profiles
// are stored as JSON documents keyed by scenario name and user id.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// Store implements domain.ScenarioStore and domain.ProfileStore.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at path and runs the
// migrations. The parent directory is created if it doesn't exist.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenarios (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *Store) LoadScenario(ctx context.Context, name string) (*domain.Scenario, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM scenarios WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ReadError("load scenario", err)
	}
	return decodeScenario(data)
}

func decodeScenario(data string) (*domain.Scenario, error) {
	var sc domain.Scenario
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
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

	query := `
	INSERT INTO scenarios (name, data, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, sc.Name, string(data), now()); err != nil {
		return domain.WriteError("save scenario", err)
	}
	return nil
}

// SaveConversation rewrites the scenario row inside one transaction so
// concurrent writers to other conversations are not lost.
func (s *Store) SaveConversation(ctx context.Context, scenario string, conv *domain.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WriteError("save conversation", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM scenarios WHERE name = ?`, scenario).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
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
	if _, err := tx.ExecContext(ctx, `UPDATE scenarios SET data = ?, updated_at = ? WHERE name = ?`,
		string(out), now(), scenario); err != nil {
		return domain.WriteError("save conversation", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WriteError("save conversation", err)
	}
	return nil
}

// ListScenarios returns scenarios in creation order.
func (s *Store) ListScenarios(ctx context.Context) ([]*domain.Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM scenarios ORDER BY seq`)
	if err != nil {
		return nil, domain.ReadError("list scenarios", err)
	}
	defer rows.Close()

	var out []*domain.Scenario
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, domain.ReadError("list scenarios", err)
		}
		sc, err := decodeScenario(data)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ReadError("list scenarios", err)
	}
	return out, nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scenarios`); err != nil {
		return domain.WriteError("clear scenarios", err)
	}
	return nil
}

func (s *Store) LoadProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE user_id = ?`, string(userID)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ReadError("load profile", err)
	}

	var p domain.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, domain.ReadError("decode profile", err)
	}
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, userID domain.UserID, p *domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return domain.WriteError("encode profile", err)
	}

	query := `
	INSERT INTO profiles (user_id, data, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, string(userID), string(data), now()); err != nil {
		return domain.WriteError("save profile", err)
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID domain.UserID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, string(userID)); err != nil {
		return domain.WriteError("delete profile", err)
	}
	return nil
}
