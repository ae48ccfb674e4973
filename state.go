package server

import (
	"sort"

	"github.com/samber/lo"
)

// PlayerRecord is the per-player state observed by clients. Position and
// the acknowledged sequence are mutated by the tick; everything else is
// fixed at join.
type PlayerRecord struct {
	SessionID        string `json:"sessionId"`
	AccountID        string `json:"accountId"`
	Name             string `json:"name"`
	X                int    `json:"x"`
	Y                int    `json:"y"`
	LastProcessedSeq uint64 `json:"lastProcessedSeq"`
}

// roomState is the synchronized state of one room. Every mutation funnels
// through a setter that records a patch; the room flushes patches to all
// sessions at tick end.
type roomState struct {
	players map[string]*PlayerRecord
	pending []Patch
}

func newRoomState() *roomState {
	return &roomState{players: make(map[string]*PlayerRecord)}
}

func (s *roomState) player(sessionID string) (*PlayerRecord, bool) {
	rec, ok := s.players[sessionID]
	return rec, ok
}

// addPlayer inserts a fully populated record. Records are never inserted
// partially initialized; a half-built record would otherwise leak to
// clients as a nonsense patch.
func (s *roomState) addPlayer(rec PlayerRecord) {
	clone := rec
	s.players[rec.SessionID] = &clone
	s.pending = append(s.pending, Patch{Kind: PatchPlayerAdded, EntityID: rec.SessionID, Payload: clone})
}

// setPosition moves a player and acknowledges the input that caused it.
// Called for blocked moves too: the sequence must advance regardless.
func (s *roomState) setPosition(sessionID string, x, y int, seq uint64) {
	rec, ok := s.players[sessionID]
	if !ok {
		return
	}
	rec.X, rec.Y, rec.LastProcessedSeq = x, y, seq
	s.pending = append(s.pending, Patch{
		Kind:     PatchPlayerUpdate,
		EntityID: sessionID,
		Payload:  PlayerUpdatePayload{X: x, Y: y, LastProcessedSeq: seq},
	})
}

func (s *roomState) removePlayer(sessionID string) {
	if _, ok := s.players[sessionID]; !ok {
		return
	}
	delete(s.players, sessionID)
	s.pending = append(s.pending, Patch{Kind: PatchPlayerRemoved, EntityID: sessionID})
}

// drain returns the accumulated patches and resets the pending list.
func (s *roomState) drain() []Patch {
	if len(s.pending) == 0 {
		return nil
	}
	patches := s.pending
	s.pending = nil
	return patches
}

// snapshot copies every record, ordered by session id so welcome payloads
// are stable.
func (s *roomState) snapshot() []PlayerRecord {
	records := lo.MapToSlice(s.players, func(_ string, rec *PlayerRecord) PlayerRecord {
		return *rec
	})
	sort.Slice(records, func(i, j int) bool { return records[i].SessionID < records[j].SessionID })
	return records
}
