package realtime

import (
	"context"
	"errors"
)

var ErrConnClosed = errors.New("connection closed")

// Conn is one live client socket. Send and Close are safe for concurrent use.
type Conn interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
	Close(code int, reason string) error
}
