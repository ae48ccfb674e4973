// Package store is the persistence port consumed by the room runtime and
// the world admin surface. The SQLite adapter in this package is the only
// implementation shipped with the server; tests substitute fakes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// WorldSave is a persisted world. WorldData is opaque JSON owned by the
// world's map/content pipeline; the server writes it back untouched.
type WorldSave struct {
	ID             string          `json:"id"`
	OwnerAccountID string          `json:"ownerAccountId"`
	Name           string          `json:"name"`
	Seed           string          `json:"seed"`
	WorldData      json.RawMessage `json:"worldData,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Character is a persisted player character. One per (account, world).
type Character struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	WorldID   string    `json:"worldId"`
	Name      string    `json:"name"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CharacterPosition pairs a character with the tile it should be saved at.
type CharacterPosition struct {
	CharacterID string
	X           int
	Y           int
}

// Store is the narrow persistence contract the room runtime relies on.
type Store interface {
	GetWorld(ctx context.Context, worldID string) (*WorldSave, error)
	CreateWorld(ctx context.Context, ownerAccountID, name, seed string, worldData json.RawMessage) (*WorldSave, error)
	ListWorlds(ctx context.Context, ownerAccountID string) ([]WorldSave, error)
	DeleteWorld(ctx context.Context, worldID string) error

	GetCharacter(ctx context.Context, accountID, worldID string) (*Character, error)
	CreateCharacter(ctx context.Context, accountID, worldID, name string, x, y int) (*Character, error)

	// SaveCharacterPosition persists one character's tile; used by the
	// fire-and-forget leave path.
	SaveCharacterPosition(ctx context.Context, characterID string, x, y int) error

	// SaveAll persists the world blob and every listed character position in
	// a single transaction: all rows commit or none do.
	SaveAll(ctx context.Context, worldID string, worldData json.RawMessage, positions []CharacterPosition) error
}
