// Package ws is the session gateway: it accepts websocket connections,
// authenticates the join envelope, hands the session to the room registry,
// and pumps messages both ways until the connection drops.
package ws

import (
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tilebound/server"
	"tilebound/server/internal/auth"
)

const joinDeadline = 10 * time.Second

type Handler struct {
	registry *server.Registry
	decoder  auth.TokenDecoder
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(registry *server.Registry, decoder auth.TokenDecoder, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		decoder:  decoder,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	conn.SetReadLimit(4096)

	// The join envelope must arrive as the first frame.
	conn.SetReadDeadline(time.Now().Add(joinDeadline))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	var envelope server.JoinEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.WorldSaveID == "" {
		h.closeBeforeJoin(conn, websocket.ClosePolicyViolation, "invalid join envelope")
		return
	}

	identity, err := h.decoder.Decode(envelope.Token)
	if err != nil {
		h.closeBeforeJoin(conn, server.CloseAuthFailed, "authentication failed")
		return
	}

	sess := newSession(conn, h.log)
	room, err := h.registry.JoinOrCreate(r.Context(), envelope.WorldSaveID, sess, identity, envelope.CharacterName)
	if err != nil {
		var joinErr *server.JoinError
		if errors.As(err, &joinErr) {
			sess.Close(joinErr.Code, joinErr.Reason)
		} else {
			h.log.Error().Err(err).Str("world_id", envelope.WorldSaveID).Msg("join failed")
			sess.Close(websocket.CloseInternalServerErr, "join failed")
		}
		return
	}

	conn.SetReadDeadline(time.Time{})
	h.readLoop(conn, sess, room)
}

func (h *Handler) readLoop(conn *websocket.Conn, sess *session, room *server.Room) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			consented := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			room.Leave(sess.ID(), consented)
			sess.shutdown()
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.log.Warn().Err(err).Str("session_id", sess.ID()).Msg("discarding malformed message")
			continue
		}

		switch msg.Type {
		case server.MessageInput:
			room.HandleInput(sess.ID(), server.InputFrame{Seq: msg.Seq, Direction: msg.Direction})
		default:
			h.log.Debug().Str("session_id", sess.ID()).Str("type", msg.Type).Msg("unknown message type")
		}
	}
}

// closeBeforeJoin rejects a connection that never became a session.
func (h *Handler) closeBeforeJoin(conn *websocket.Conn, code int, reason string) {
	message := websocket.FormatCloseMessage(code, reason)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, message)
	conn.Close()
}

type clientMessage struct {
	Type      string `json:"type"`
	Seq       uint64 `json:"seq"`
	Direction string `json:"direction"`
}
