package core

import "errors"

// Frame is a raw wire message, exactly as read from or written to a socket.
type Frame []byte

// Sentinel failures of TrySend. Backpressure means the peer is connected but
// too slow to drain its queue; closed means the connection is gone.
var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts a peer's outbound message transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues a frame without blocking. It returns an error when
	// the outbound buffer is full or the connection is closed.
	TrySend(Frame) error
	Close()
}
