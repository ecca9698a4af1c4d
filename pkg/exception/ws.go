package exception

import "github.com/yanun0323/errors"

// WS errors
var (
	ErrWebSocketConnectionClose = errors.New("websocket: connection closed")
	ErrWebSocketProtocol        = errors.New("websocket: protocol error")
	ErrWebSocketNotConnected    = errors.New("websocket: not connected")
)

// Queue errors
var (
	ErrQueueFull      = errors.New("queue: full")
	ErrQueueClosed    = errors.New("queue: closed")
	ErrNotStarted     = errors.New("writer: not started")
	ErrAlreadyStarted = errors.New("writer: already started")
	ErrWriterClosed   = errors.New("writer: closed")
)
