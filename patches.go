package server

// PatchKind identifies the type of diff entry.
type PatchKind string

const (
	// PatchPlayerAdded announces a new player record; the payload is the
	// full record.
	PatchPlayerAdded PatchKind = "player_added"
	// PatchPlayerUpdate carries the tick-mutable fields of a player record.
	PatchPlayerUpdate PatchKind = "player_update"
	// PatchPlayerRemoved signals that a player left the room.
	PatchPlayerRemoved PatchKind = "player_removed"
)

// Patch is a diff entry applied by clients to their local copy of the room
// state. EntityID is the session id the patch addresses.
type Patch struct {
	Kind     PatchKind `json:"kind"`
	EntityID string    `json:"entityId"`
	Payload  any       `json:"payload,omitempty"`
}

// PlayerUpdatePayload carries position and the acknowledged input sequence.
// The sequence advances even for blocked moves; clients prune their
// prediction buffer against it.
type PlayerUpdatePayload struct {
	X                int    `json:"x"`
	Y                int    `json:"y"`
	LastProcessedSeq uint64 `json:"lastProcessedSeq"`
}
