package server

import "tilebound/server/tile"

// InputMessage is a validated client input awaiting its tick.
type InputMessage struct {
	Seq       uint64
	Direction tile.Direction
}

// rejectReason classifies why an input was discarded. Rejections are
// logged, never surfaced to the client.
type rejectReason string

const (
	rejectNone      rejectReason = ""
	rejectMalformed rejectReason = "malformed"
)

// validateShape checks the parts of an input frame that do not depend on
// player state: a positive sequence number and a known direction.
func validateShape(frame InputFrame) (InputMessage, rejectReason) {
	if frame.Seq == 0 {
		return InputMessage{}, rejectMalformed
	}
	dir, ok := tile.ParseDirection(frame.Direction)
	if !ok {
		return InputMessage{}, rejectMalformed
	}
	return InputMessage{Seq: frame.Seq, Direction: dir}, rejectNone
}

// inputQueue is a per-session FIFO capped at MaxQueue. It absorbs bursts
// between ticks; the tick consumes exactly one entry per player.
type inputQueue struct {
	items []InputMessage
}

func newInputQueue() *inputQueue {
	return &inputQueue{items: make([]InputMessage, 0, MaxQueue)}
}

// push appends an input, refusing it when the queue is full. Refusing the
// newest keeps the oldest well-formed inputs and bounds memory against a
// client that floods.
func (q *inputQueue) push(msg InputMessage) bool {
	if len(q.items) >= MaxQueue {
		return false
	}
	q.items = append(q.items, msg)
	return true
}

// pop removes and returns the head of the queue.
func (q *inputQueue) pop() (InputMessage, bool) {
	if len(q.items) == 0 {
		return InputMessage{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

func (q *inputQueue) len() int { return len(q.items) }
