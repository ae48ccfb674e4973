package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS world_saves (
	id               TEXT PRIMARY KEY,
	owner_account_id TEXT NOT NULL,
	name             TEXT NOT NULL,
	seed             TEXT NOT NULL,
	world_data       TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS characters (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	world_id   TEXT NOT NULL REFERENCES world_saves(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	x          INTEGER NOT NULL,
	y          INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(account_id, world_id)
);
`

// SQLite implements Store on a local SQLite database.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens (creating if missing) the database at path and applies
// the schema. WAL and a busy timeout keep the shared pool usable across
// rooms saving concurrently.
func OpenSQLite(path string, log zerolog.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info().Str("path", path).Msg("sqlite store ready")
	return &SQLite{db: db, log: log}, nil
}

// Close releases the underlying pool.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) GetWorld(ctx context.Context, worldID string) (*WorldSave, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_account_id, name, seed, world_data, created_at, updated_at
		 FROM world_saves WHERE id = ?`, worldID)
	return scanWorld(row)
}

func (s *SQLite) CreateWorld(ctx context.Context, ownerAccountID, name, seed string, worldData json.RawMessage) (*WorldSave, error) {
	now := time.Now().UTC()
	world := &WorldSave{
		ID:             uuid.NewString(),
		OwnerAccountID: ownerAccountID,
		Name:           name,
		Seed:           seed,
		WorldData:      worldData,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO world_saves (id, owner_account_id, name, seed, world_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		world.ID, world.OwnerAccountID, world.Name, world.Seed, string(world.WorldData),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert world: %w", err)
	}
	return world, nil
}

func (s *SQLite) ListWorlds(ctx context.Context, ownerAccountID string) ([]WorldSave, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_account_id, name, seed, world_data, created_at, updated_at
		 FROM world_saves WHERE owner_account_id = ? ORDER BY updated_at DESC`, ownerAccountID)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	defer rows.Close()

	var worlds []WorldSave
	for rows.Next() {
		world, err := scanWorld(rows)
		if err != nil {
			return nil, err
		}
		worlds = append(worlds, *world)
	}
	return worlds, rows.Err()
}

func (s *SQLite) DeleteWorld(ctx context.Context, worldID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM world_saves WHERE id = ?`, worldID)
	if err != nil {
		return fmt.Errorf("delete world: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) GetCharacter(ctx context.Context, accountID, worldID string) (*Character, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, world_id, name, x, y, created_at, updated_at
		 FROM characters WHERE account_id = ? AND world_id = ?`, accountID, worldID)
	return scanCharacter(row)
}

func (s *SQLite) CreateCharacter(ctx context.Context, accountID, worldID, name string, x, y int) (*Character, error) {
	now := time.Now().UTC()
	ch := &Character{
		ID:        uuid.NewString(),
		AccountID: accountID,
		WorldID:   worldID,
		Name:      name,
		X:         x,
		Y:         y,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (id, account_id, world_id, name, x, y, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.AccountID, ch.WorldID, ch.Name, ch.X, ch.Y,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert character: %w", err)
	}
	return ch, nil
}

func (s *SQLite) SaveCharacterPosition(ctx context.Context, characterID string, x, y int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE characters SET x = ?, y = ?, updated_at = ? WHERE id = ?`,
		x, y, time.Now().UTC().Format(time.RFC3339), characterID)
	if err != nil {
		return fmt.Errorf("save character position: %w", err)
	}
	return nil
}

func (s *SQLite) SaveAll(ctx context.Context, worldID string, worldData json.RawMessage, positions []CharacterPosition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`UPDATE world_saves SET world_data = ?, updated_at = ? WHERE id = ?`,
		string(worldData), now, worldID); err != nil {
		return fmt.Errorf("save world data: %w", err)
	}
	for _, pos := range positions {
		if _, err := tx.ExecContext(ctx,
			`UPDATE characters SET x = ?, y = ?, updated_at = ? WHERE id = ?`,
			pos.X, pos.Y, now, pos.CharacterID); err != nil {
			return fmt.Errorf("save character %s: %w", pos.CharacterID, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorld(row rowScanner) (*WorldSave, error) {
	var world WorldSave
	var data, created, updated string
	err := row.Scan(&world.ID, &world.OwnerAccountID, &world.Name, &world.Seed, &data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan world: %w", err)
	}
	if data != "" {
		world.WorldData = json.RawMessage(data)
	}
	world.CreatedAt, _ = time.Parse(time.RFC3339, created)
	world.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &world, nil
}

func scanCharacter(row rowScanner) (*Character, error) {
	var ch Character
	var created, updated string
	err := row.Scan(&ch.ID, &ch.AccountID, &ch.WorldID, &ch.Name, &ch.X, &ch.Y, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan character: %w", err)
	}
	ch.CreatedAt, _ = time.Parse(time.RFC3339, created)
	ch.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &ch, nil
}
