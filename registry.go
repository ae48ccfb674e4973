package server

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"

	"tilebound/server/internal/auth"
	"tilebound/server/internal/store"
	"tilebound/server/tile"
)

// Registry is the process-wide directory of live rooms, keyed by world id.
// It owns lookup synchronization only: creation is serialized per key so
// concurrent cold-opens of the same world share a single onCreate, and the
// loser of the race joins the room the winner created.
type Registry struct {
	mu    deadlock.Mutex
	rooms map[string]*registryEntry

	cfg   Config
	store store.Store
	log   zerolog.Logger
}

// registryEntry tracks a room that is live or still being created. ready is
// closed once create finishes; room/err are immutable afterwards.
type registryEntry struct {
	ready chan struct{}
	room  *Room
	err   error
}

func NewRegistry(cfg Config, st store.Store, log zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*registryEntry),
		cfg:   cfg.normalized(),
		store: st,
		log:   log,
	}
}

// JoinOrCreate locates or creates the room for worldID and joins the
// session to it. It returns only after a successful Join, or with the
// creation/join error.
func (g *Registry) JoinOrCreate(ctx context.Context, worldID string, sess Session, identity auth.Identity, characterName string) (*Room, error) {
	// A join can land on a room that is mid-dispose; retry against a fresh
	// entry. Two attempts suffice: the stale entry is gone after the first.
	for attempt := 0; attempt < 3; attempt++ {
		room, err := g.lookupOrCreate(ctx, worldID)
		if err != nil {
			return nil, err
		}
		err = room.Join(ctx, sess, identity, characterName)
		if errors.Is(err, errRoomClosed) {
			g.evict(worldID, room)
			continue
		}
		if err != nil {
			return nil, err
		}
		return room, nil
	}
	return nil, fmt.Errorf("room for world %s kept closing during join", worldID)
}

func (g *Registry) lookupOrCreate(ctx context.Context, worldID string) (*Room, error) {
	g.mu.Lock()
	if entry, ok := g.rooms[worldID]; ok {
		g.mu.Unlock()
		<-entry.ready
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.room, nil
	}

	entry := &registryEntry{ready: make(chan struct{})}
	g.rooms[worldID] = entry
	g.mu.Unlock()

	room, err := g.createRoom(ctx, worldID)
	entry.room, entry.err = room, err
	close(entry.ready)

	if err != nil {
		g.mu.Lock()
		if g.rooms[worldID] == entry {
			delete(g.rooms, worldID)
		}
		g.mu.Unlock()
		return nil, err
	}
	return room, nil
}

// createRoom is onCreate: load the world row, build the grid, start the
// timers. A missing world rejects creation with the world-not-found code.
func (g *Registry) createRoom(ctx context.Context, worldID string) (*Room, error) {
	world, err := g.store.GetWorld(ctx, worldID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &JoinError{Code: CloseWorldNotFound, Reason: "world not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("load world %s: %w", worldID, err)
	}

	m := mapForWorld(world, g.log)
	room := newRoom(world, m, g.cfg, g.store, g.log, func(id string) {
		g.mu.Lock()
		delete(g.rooms, id)
		g.mu.Unlock()
	})
	room.start()

	g.log.Info().
		Str("world_id", world.ID).
		Str("owner_account_id", world.OwnerAccountID).
		Int("width", m.Width()).
		Int("height", m.Height()).
		Msg("room created")
	return room, nil
}

// evict drops a registry entry that still points at a closed room.
func (g *Registry) evict(worldID string, room *Room) {
	g.mu.Lock()
	if entry, ok := g.rooms[worldID]; ok && entry.room == room {
		delete(g.rooms, worldID)
	}
	g.mu.Unlock()
}

// Live reports whether a room currently exists for the world.
func (g *Registry) Live(worldID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.rooms[worldID]
	return ok
}

// Diagnostics snapshots every live room, ordered by world id.
func (g *Registry) Diagnostics() []RoomDiagnostics {
	g.mu.Lock()
	entries := make([]*registryEntry, 0, len(g.rooms))
	for _, entry := range g.rooms {
		entries = append(entries, entry)
	}
	g.mu.Unlock()

	diags := make([]RoomDiagnostics, 0, len(entries))
	for _, entry := range entries {
		select {
		case <-entry.ready:
		default:
			continue // still creating
		}
		if entry.err == nil && entry.room != nil {
			diags = append(diags, entry.room.diagnostics())
		}
	}
	sort.Slice(diags, func(i, j int) bool { return diags[i].WorldID < diags[j].WorldID })
	return diags
}

// mapForWorld decodes the grid embedded in the world blob, falling back to
// deterministic generation from the world's seed.
func mapForWorld(world *store.WorldSave, log zerolog.Logger) *tile.Map {
	if len(world.WorldData) > 0 {
		m, err := tile.Decode(world.WorldData)
		if err == nil {
			return m
		}
		log.Debug().Err(err).Str("world_id", world.ID).Msg("world data carries no grid; generating from seed")
	}
	return tile.Generate(world.Seed, tile.DefaultWidth, tile.DefaultHeight)
}
