package server

// Session is the room's view of one connected client. Implementations must
// make Send non-blocking and deliver messages in call order; the websocket
// gateway satisfies this with a per-session writer goroutine.
type Session interface {
	// ID is unique within the room for the life of the connection.
	ID() string
	// Send queues a server-to-client message. It never blocks the caller;
	// a session that cannot keep up is dropped by its transport.
	Send(msg any)
	// Close sends a close frame with the given code and tears the
	// connection down. The transport-level disconnect that follows drives
	// Leave.
	Close(code int, reason string)
}
