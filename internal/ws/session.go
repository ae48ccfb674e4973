package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait       = 10 * time.Second
	outboundBacklog = 64
)

// session adapts a websocket connection to the room's Session interface.
// All writes go through a single writer goroutine, which gives each client
// the in-order delivery the patch stream requires and keeps a slow client
// from ever blocking the room.
type session struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger

	out      chan outboundFrame
	quit     chan struct{}
	quitOnce sync.Once
}

type outboundFrame struct {
	messageType int
	data        []byte
	terminal    bool
}

func newSession(conn *websocket.Conn, log zerolog.Logger) *session {
	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		log:  log,
		out:  make(chan outboundFrame, outboundBacklog),
		quit: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *session) ID() string { return s.id }

// Send queues a message for delivery. Never blocks: a session whose
// backlog is full gets dropped instead of stalling the tick.
func (s *session) Send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", s.id).Msg("failed to marshal outbound message")
		return
	}
	s.enqueue(outboundFrame{messageType: websocket.TextMessage, data: data})
}

// Close queues a close frame; the writer tears the connection down after
// sending it.
func (s *session) Close(code int, reason string) {
	data := websocket.FormatCloseMessage(code, reason)
	s.enqueue(outboundFrame{messageType: websocket.CloseMessage, data: data, terminal: true})
}

func (s *session) enqueue(frame outboundFrame) {
	select {
	case <-s.quit:
	case s.out <- frame:
	default:
		s.log.Warn().Str("session_id", s.id).Msg("outbound backlog full; dropping connection")
		s.shutdown()
	}
}

// shutdown closes the underlying connection and stops the writer. Safe to
// call multiple times and from any goroutine.
func (s *session) shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.conn.Close()
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.quit:
			return
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(frame.messageType, frame.data); err != nil {
				s.shutdown()
				return
			}
			if frame.terminal {
				s.shutdown()
				return
			}
		}
	}
}
