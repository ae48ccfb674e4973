package server

import "tilebound/server/tile"

// JoinEnvelope is the first frame a client sends after the websocket
// upgrade.
type JoinEnvelope struct {
	Token         string `json:"token"`
	WorldSaveID   string `json:"worldSaveId"`
	CharacterName string `json:"characterName,omitempty"`
}

// InputFrame is the raw, not-yet-validated payload of an INPUT message.
type InputFrame struct {
	Seq       uint64 `json:"seq"`
	Direction string `json:"direction"`
}

// WelcomeMessage is sent once to a session that completed a join: its own
// session id, the full player snapshot, and the immutable map.
type WelcomeMessage struct {
	Ver       int            `json:"ver"`
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Players   []PlayerRecord `json:"players"`
	Map       tile.Document  `json:"map"`
	Config    RoomConfig     `json:"config"`
}

// RoomConfig carries the contract constants clients rely on.
type RoomConfig struct {
	TickRate     int `json:"tickRate"`
	MaxPartySize int `json:"maxPartySize"`
}

// StateMessage delivers the patches produced by one tick. Patches for tick
// N always reach a session before any patch for tick N+1.
type StateMessage struct {
	Ver        int     `json:"ver"`
	Type       string  `json:"type"`
	Tick       uint64  `json:"t"`
	Patches    []Patch `json:"patches"`
	ServerTime int64   `json:"serverTime"`
}

// IdleWarningMessage tells a quiet client how long it has before the kick.
type IdleWarningMessage struct {
	Ver              int    `json:"ver"`
	Type             string `json:"type"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

// IdleKickMessage precedes the 4005 close frame.
type IdleKickMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

const (
	MessageWelcome     = "welcome"
	MessageState       = "state"
	MessageIdleWarning = "idle_warning"
	MessageIdleKick    = "idle_kick"
	MessageInput       = "input"
)
