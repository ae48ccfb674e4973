package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"tilebound/server/internal/auth"
	"tilebound/server/internal/store"
	"tilebound/server/tile"
)

// fakeStore is an in-memory Persistence port for room and registry tests.
type fakeStore struct {
	mu         sync.Mutex
	worlds     map[string]*store.WorldSave
	characters map[string]*store.Character
	nextCharID int

	getWorldCalls int
	saveAllCalls  int

	// saveAllGate, when set, blocks SaveAll until the gate is closed.
	saveAllGate chan struct{}
	// charSaved receives every SaveCharacterPosition call.
	charSaved chan store.CharacterPosition
	// saveAllDone receives a signal after every completed SaveAll.
	saveAllDone chan struct{}

	failGetCharacter error
}

func newFakeStore(worlds ...*store.WorldSave) *fakeStore {
	fs := &fakeStore{
		worlds:      make(map[string]*store.WorldSave),
		characters:  make(map[string]*store.Character),
		charSaved:   make(chan store.CharacterPosition, 16),
		saveAllDone: make(chan struct{}, 16),
	}
	for _, world := range worlds {
		fs.worlds[world.ID] = world
	}
	return fs
}

func characterKey(accountID, worldID string) string {
	return accountID + "|" + worldID
}

func (f *fakeStore) GetWorld(ctx context.Context, worldID string) (*store.WorldSave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getWorldCalls++
	world, ok := f.worlds[worldID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *world
	return &clone, nil
}

func (f *fakeStore) CreateWorld(ctx context.Context, ownerAccountID, name, seed string, worldData json.RawMessage) (*store.WorldSave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	world := &store.WorldSave{
		ID:             fmt.Sprintf("world-%d", len(f.worlds)+1),
		OwnerAccountID: ownerAccountID,
		Name:           name,
		Seed:           seed,
		WorldData:      worldData,
	}
	f.worlds[world.ID] = world
	return world, nil
}

func (f *fakeStore) ListWorlds(ctx context.Context, ownerAccountID string) ([]store.WorldSave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var worlds []store.WorldSave
	for _, world := range f.worlds {
		if world.OwnerAccountID == ownerAccountID {
			worlds = append(worlds, *world)
		}
	}
	return worlds, nil
}

func (f *fakeStore) DeleteWorld(ctx context.Context, worldID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.worlds[worldID]; !ok {
		return store.ErrNotFound
	}
	delete(f.worlds, worldID)
	return nil
}

func (f *fakeStore) GetCharacter(ctx context.Context, accountID, worldID string) (*store.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGetCharacter != nil {
		return nil, f.failGetCharacter
	}
	ch, ok := f.characters[characterKey(accountID, worldID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *ch
	return &clone, nil
}

func (f *fakeStore) CreateCharacter(ctx context.Context, accountID, worldID, name string, x, y int) (*store.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCharID++
	ch := &store.Character{
		ID:        fmt.Sprintf("char-%d", f.nextCharID),
		AccountID: accountID,
		WorldID:   worldID,
		Name:      name,
		X:         x,
		Y:         y,
	}
	f.characters[characterKey(accountID, worldID)] = ch
	clone := *ch
	return &clone, nil
}

func (f *fakeStore) SaveCharacterPosition(ctx context.Context, characterID string, x, y int) error {
	f.mu.Lock()
	for _, ch := range f.characters {
		if ch.ID == characterID {
			ch.X, ch.Y = x, y
		}
	}
	f.mu.Unlock()
	f.charSaved <- store.CharacterPosition{CharacterID: characterID, X: x, Y: y}
	return nil
}

func (f *fakeStore) SaveAll(ctx context.Context, worldID string, worldData json.RawMessage, positions []store.CharacterPosition) error {
	f.mu.Lock()
	gate := f.saveAllGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.saveAllCalls++
	for _, pos := range positions {
		for _, ch := range f.characters {
			if ch.ID == pos.CharacterID {
				ch.X, ch.Y = pos.X, pos.Y
			}
		}
	}
	f.mu.Unlock()
	f.saveAllDone <- struct{}{}
	return nil
}

// fakeSession records everything the room sends or does to it.
type fakeSession struct {
	id string

	mu          sync.Mutex
	sent        []any
	closed      bool
	closeCode   int
	closeReason string
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
}

func (s *fakeSession) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCode = code
	s.closeReason = reason
}

func (s *fakeSession) sentMessages() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.sent...)
}

func (s *fakeSession) closedWith() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closed
}

func (s *fakeSession) lastStateMessage() (StateMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if msg, ok := s.sent[i].(StateMessage); ok {
			return msg, true
		}
	}
	return StateMessage{}, false
}

const (
	testWorldID   = "world-1"
	hostAccountID = "acct-host"
)

func testWorld() *store.WorldSave {
	return &store.WorldSave{
		ID:             testWorldID,
		OwnerAccountID: hostAccountID,
		Name:           "Emberfield",
		Seed:           "emberfield",
	}
}

// openTestMap is the 5×5 fixture from the movement scenarios: ground
// interior, walled perimeter, spawn (2,2).
func openTestMap(t *testing.T) *tile.Map {
	t.Helper()
	m, err := tile.NewMap([]string{
		"#####",
		"#...#",
		"#...#",
		"#...#",
		"#####",
	}, 2, 2)
	if err != nil {
		t.Fatalf("failed to build test map: %v", err)
	}
	return m
}

func newTestRoom(t *testing.T, fs *fakeStore) *Room {
	t.Helper()
	return newRoom(testWorld(), openTestMap(t), Config{}, fs, zerolog.Nop(), nil)
}

func joinPlayer(t *testing.T, r *Room, accountID, sessionID string) *fakeSession {
	t.Helper()
	sess := newFakeSession(sessionID)
	identity := auth.Identity{AccountID: accountID, Email: accountID + "@example.com"}
	if err := r.Join(context.Background(), sess, identity, "Hero "+accountID); err != nil {
		t.Fatalf("join for %s failed: %v", accountID, err)
	}
	return sess
}
