package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/sasha-s/go-deadlock"

	"tilebound/server/internal/auth"
	"tilebound/server/internal/store"
	"tilebound/server/tile"
)

// JoinError maps a rejected join to the close code the gateway should send.
type JoinError struct {
	Code   int
	Reason string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join rejected (%d): %s", e.Code, e.Reason)
}

// errRoomClosed is returned by Join when the room is disposing; the
// registry retries against a fresh room.
var errRoomClosed = errors.New("room closed")

// Room owns the authoritative state and lifecycle for exactly one world
// save. All state mutations are serialized through mu: tick, input intake,
// idle checks, joins, and leaves execute one at a time.
type Room struct {
	worldID       string
	world         *store.WorldSave
	tileMap       *tile.Map
	hostAccountID string

	mu                 deadlock.Mutex
	state              *roomState
	queues             map[string]*inputQueue
	sessions           map[string]Session
	accountBySession   map[string]string
	characterBySession map[string]string
	lastInput          map[string]time.Time
	idleWarned         map[string]struct{}
	hostSessionID      string
	tickNum            uint64
	everWarm           bool
	disposed           bool

	// saveMu is the single-flight save guard: auto-save skips when a save
	// is in flight, dispose waits for it.
	saveMu saveFlag

	stop     chan struct{}
	stopOnce sync.Once

	cfg        Config
	store      store.Store
	log        zerolog.Logger
	now        func() time.Time
	onDisposed func(worldID string)
}

// saveFlag wraps a mutex so the intent (skip vs wait) reads at call sites.
type saveFlag struct{ mu sync.Mutex }

func (f *saveFlag) tryAcquire() bool { return f.mu.TryLock() }
func (f *saveFlag) acquire()         { f.mu.Lock() }
func (f *saveFlag) release()         { f.mu.Unlock() }

func newRoom(world *store.WorldSave, m *tile.Map, cfg Config, st store.Store, log zerolog.Logger, onDisposed func(string)) *Room {
	return &Room{
		worldID:            world.ID,
		world:              world,
		tileMap:            m,
		hostAccountID:      world.OwnerAccountID,
		state:              newRoomState(),
		queues:             make(map[string]*inputQueue),
		sessions:           make(map[string]Session),
		accountBySession:   make(map[string]string),
		characterBySession: make(map[string]string),
		lastInput:          make(map[string]time.Time),
		idleWarned:         make(map[string]struct{}),
		stop:               make(chan struct{}),
		cfg:                cfg.normalized(),
		store:              st,
		log:                log.With().Str("world_id", world.ID).Logger(),
		now:                time.Now,
		onDisposed:         onDisposed,
	}
}

// start launches the room's timer loop: tick, auto-save, idle check.
func (r *Room) start() {
	go r.run()
}

func (r *Room) run() {
	tick := time.NewTicker(r.cfg.TickInterval)
	defer tick.Stop()
	save := time.NewTicker(r.cfg.AutoSaveInterval)
	defer save.Stop()
	idle := time.NewTicker(r.cfg.IdleCheckInterval)
	defer idle.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-tick.C:
			r.tick()
		case <-save.C:
			r.autoSave()
		case <-idle.C:
			r.checkIdle(r.now())
		}
	}
}

// WorldID returns the world save this room runs.
func (r *Room) WorldID() string { return r.worldID }

// Map returns the room's immutable tile grid.
func (r *Room) Map() *tile.Map { return r.tileMap }

// Join admits a session into the room. Ownership, capacity, and character
// load/create all happen under the room lock; on any failure nothing of the
// session remains in the room.
func (r *Room) Join(ctx context.Context, sess Session, identity auth.Identity, characterName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return errRoomClosed
	}
	if len(r.state.players) == 0 && identity.AccountID != r.hostAccountID {
		r.failedColdOpenLocked()
		return &JoinError{Code: CloseNotOwner, Reason: "only the world owner may open this world"}
	}
	if len(r.state.players) >= MaxPartySize {
		return &JoinError{Code: CloseRoomFull, Reason: "room full"}
	}

	character, err := r.loadOrCreateCharacter(ctx, identity, characterName)
	if err != nil {
		r.log.Error().Err(err).Str("account_id", identity.AccountID).Msg("join failed on persistence")
		r.failedColdOpenLocked()
		return fmt.Errorf("load character: %w", err)
	}

	x, y := character.X, character.Y
	if !r.tileMap.Passable(x, y) {
		// Saved position no longer matches the grid; fall back to spawn
		// rather than violate the passability invariant.
		x, y = r.tileMap.Spawn()
	}

	record := PlayerRecord{
		SessionID: sess.ID(),
		AccountID: identity.AccountID,
		Name:      character.Name,
		X:         x,
		Y:         y,
	}
	r.state.addPlayer(record)
	r.everWarm = true
	r.sessions[sess.ID()] = sess
	r.accountBySession[sess.ID()] = identity.AccountID
	r.characterBySession[sess.ID()] = character.ID
	r.lastInput[sess.ID()] = r.now()
	r.queues[sess.ID()] = newInputQueue()
	if identity.AccountID == r.hostAccountID {
		r.hostSessionID = sess.ID()
	}

	sx, sy := r.tileMap.Spawn()
	sess.Send(WelcomeMessage{
		Ver:       ProtocolVersion,
		Type:      MessageWelcome,
		SessionID: sess.ID(),
		Players:   r.state.snapshot(),
		Map: tile.Document{
			Width:  r.tileMap.Width(),
			Height: r.tileMap.Height(),
			Spawn:  tile.Coord{X: sx, Y: sy},
			Tiles:  r.tileMap.Rows(),
		},
		Config: RoomConfig{TickRate: TickRate, MaxPartySize: MaxPartySize},
	})

	r.log.Info().
		Str("session_id", sess.ID()).
		Str("account_id", identity.AccountID).
		Str("name", character.Name).
		Msg("player joined")
	return nil
}

func (r *Room) loadOrCreateCharacter(ctx context.Context, identity auth.Identity, characterName string) (*store.Character, error) {
	character, err := r.store.GetCharacter(ctx, identity.AccountID, r.worldID)
	if err == nil {
		return character, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(characterName)
	if name == "" {
		name = identity.Email
	}
	sx, sy := r.tileMap.Spawn()
	return r.store.CreateCharacter(ctx, identity.AccountID, r.worldID, name, sx, sy)
}

// failedColdOpenLocked disposes a room whose only join attempt failed. A
// room that never went warm has nobody left to keep it alive.
func (r *Room) failedColdOpenLocked() {
	if r.everWarm || len(r.state.players) > 0 {
		return
	}
	r.disposed = true
	go r.finishDispose()
}

// HandleInput runs the validation pipeline on one inbound INPUT message and
// stages it for the next tick. Rejections are silent to the client.
func (r *Room) HandleInput(sessionID string, frame InputFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}

	msg, reject := validateShape(frame)
	if reject == rejectMalformed {
		r.log.Warn().
			Str("session_id", sessionID).
			Uint64("seq", frame.Seq).
			Str("direction", frame.Direction).
			Msg("discarding malformed input")
		return
	}

	record, ok := r.state.player(sessionID)
	if !ok {
		// Race with a leave in flight; nothing to do.
		r.log.Debug().Str("session_id", sessionID).Msg("input for unknown player")
		return
	}

	// Any well-formed input from a known session proves the player is
	// still at the keyboard, stale sequence or not.
	r.lastInput[sessionID] = r.now()
	delete(r.idleWarned, sessionID)

	if msg.Seq <= record.LastProcessedSeq {
		r.log.Debug().
			Str("session_id", sessionID).
			Uint64("seq", msg.Seq).
			Uint64("last_processed", record.LastProcessedSeq).
			Msg("dropping stale input")
		return
	}

	if !r.queues[sessionID].push(msg) {
		r.log.Debug().Str("session_id", sessionID).Uint64("seq", msg.Seq).Msg("input queue full")
	}
}

// tick consumes at most one input per player, applies the movement
// evaluator, and flushes the resulting patches to every session. The
// acknowledged sequence advances even when the move was blocked; that is
// the contract client reconciliation depends on.
func (r *Room) tick() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.tickNum++
	tickNum := r.tickNum

	for sessionID, queue := range r.queues {
		msg, ok := queue.pop()
		if !ok {
			continue
		}
		record, ok := r.state.player(sessionID)
		if !ok {
			continue
		}
		x, y, _ := tile.Step(r.tileMap, record.X, record.Y, msg.Direction)
		r.state.setPosition(sessionID, x, y, msg.Seq)
	}

	patches := r.state.drain()
	sessions := lo.Values(r.sessions)
	r.mu.Unlock()

	if len(patches) == 0 {
		return
	}
	msg := StateMessage{
		Ver:        ProtocolVersion,
		Type:       MessageState,
		Tick:       tickNum,
		Patches:    patches,
		ServerTime: r.now().UnixMilli(),
	}
	for _, sess := range sessions {
		sess.Send(msg)
	}
}

// checkIdle warns sessions quiet past the warn threshold and kicks those
// past the kick threshold. The 30 s cadence makes both land up to 30 s
// late; that imprecision is part of the design.
func (r *Room) checkIdle(now time.Time) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	var toWarn, toKick []Session
	for sessionID, sess := range r.sessions {
		last, ok := r.lastInput[sessionID]
		if !ok {
			continue
		}
		elapsed := now.Sub(last)
		switch {
		case elapsed >= r.cfg.IdleKickAfter:
			toKick = append(toKick, sess)
		case elapsed >= r.cfg.IdleWarnAfter:
			if _, warned := r.idleWarned[sessionID]; !warned {
				r.idleWarned[sessionID] = struct{}{}
				toWarn = append(toWarn, sess)
			}
		}
	}
	r.mu.Unlock()

	for _, sess := range toWarn {
		r.log.Info().Str("session_id", sess.ID()).Msg("idle warning")
		sess.Send(IdleWarningMessage{Ver: ProtocolVersion, Type: MessageIdleWarning, SecondsRemaining: IdleWarningSeconds})
	}
	for _, sess := range toKick {
		r.log.Info().Str("session_id", sess.ID()).Msg("idle kick")
		sess.Send(IdleKickMessage{Ver: ProtocolVersion, Type: MessageIdleKick, Reason: "idle timeout"})
		// The transport close that follows drives Leave.
		sess.Close(CloseIdleTimeout, "idle timeout")
	}
}

// Leave removes a session from the room. Idempotent: a second call for an
// already-removed session is a no-op. The character save is fire-and-forget
// so the leave never blocks on persistence.
func (r *Room) Leave(sessionID string, consented bool) {
	r.mu.Lock()
	record, ok := r.state.player(sessionID)
	if !ok {
		r.mu.Unlock()
		return
	}
	characterID := r.characterBySession[sessionID]
	x, y := record.X, record.Y

	r.state.removePlayer(sessionID)
	delete(r.queues, sessionID)
	delete(r.sessions, sessionID)
	delete(r.accountBySession, sessionID)
	delete(r.characterBySession, sessionID)
	delete(r.lastInput, sessionID)
	delete(r.idleWarned, sessionID)
	if r.hostSessionID == sessionID {
		r.hostSessionID = ""
	}
	last := len(r.state.players) == 0
	if last {
		r.disposed = true
	}
	r.mu.Unlock()

	r.log.Info().
		Str("session_id", sessionID).
		Bool("consented", consented).
		Msg("player left")

	if characterID != "" {
		go func() {
			if err := r.store.SaveCharacterPosition(context.Background(), characterID, x, y); err != nil {
				r.log.Error().Err(err).Str("character_id", characterID).Msg("leave save failed")
			}
		}()
	}

	if last {
		r.finishDispose()
	}
}

// finishDispose cancels the timers, detaches the room from the registry,
// and runs the final save. Runs at most once.
func (r *Room) finishDispose() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.onDisposed != nil {
		r.onDisposed(r.worldID)
	}
	r.saveMu.acquire()
	defer r.saveMu.release()
	r.saveSnapshot(context.Background())
	r.log.Info().Msg("room disposed")
}

// autoSave runs the periodic save unless one is already in flight.
func (r *Room) autoSave() {
	if !r.saveMu.tryAcquire() {
		r.log.Debug().Msg("save already in flight; skipping")
		return
	}
	go func() {
		defer r.saveMu.release()
		r.saveSnapshot(context.Background())
	}()
}

// saveSnapshot copies the world blob and every live character position
// under the room lock, then writes them in one transaction. Callers hold
// the save flag.
func (r *Room) saveSnapshot(ctx context.Context) {
	r.mu.Lock()
	positions := make([]store.CharacterPosition, 0, len(r.characterBySession))
	for sessionID, characterID := range r.characterBySession {
		record, ok := r.state.player(sessionID)
		if !ok {
			continue
		}
		positions = append(positions, store.CharacterPosition{CharacterID: characterID, X: record.X, Y: record.Y})
	}
	worldData := r.world.WorldData
	r.mu.Unlock()

	if err := r.store.SaveAll(ctx, r.worldID, worldData, positions); err != nil {
		// Transient by policy: the room keeps running and the next save
		// bounds the loss to one interval.
		r.log.Error().Err(err).Msg("save failed")
		return
	}
	r.log.Debug().Int("characters", len(positions)).Msg("world saved")
}

// RoomDiagnostics is the per-room payload of the diagnostics endpoint.
type RoomDiagnostics struct {
	WorldID       string `json:"worldId"`
	Players       int    `json:"players"`
	HostConnected bool   `json:"hostConnected"`
	Tick          uint64 `json:"t"`
}

func (r *Room) diagnostics() RoomDiagnostics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomDiagnostics{
		WorldID:       r.worldID,
		Players:       len(r.state.players),
		HostConnected: r.hostSessionID != "",
		Tick:          r.tickNum,
	}
}
