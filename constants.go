package server

import "time"

const (
	// ProtocolVersion is bumped whenever the wire contract changes.
	ProtocolVersion = 1

	// TickRate is part of the client contract: clients time their prediction
	// buffer against it.
	TickRate     = 20
	TickInterval = time.Second / TickRate

	// MaxQueue caps each player's pending-input FIFO. The queue absorbs
	// bursts, not intentional slowdown; overflow refuses the newest input.
	MaxQueue = 10

	// MaxPartySize is the join ceiling per room.
	MaxPartySize = 8

	AutoSaveInterval  = 60 * time.Second
	IdleCheckInterval = 30 * time.Second

	// Idle thresholds use >= comparisons, so warnings land in
	// [14:00, 14:30) and kicks in [15:00, 15:30).
	IdleWarnAfter      = 14 * time.Minute
	IdleKickAfter      = 15 * time.Minute
	IdleWarningSeconds = 60
)

// Close codes sent with the websocket close frame. The client maps each to a
// specific disconnect overlay.
const (
	CloseAuthFailed    = 4001
	CloseNotOwner      = 4002
	CloseWorldNotFound = 4003
	CloseIdleTimeout   = 4005
	CloseRoomFull      = 4008
)
