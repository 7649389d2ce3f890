package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/social-backend/internal/platform/logger"
)

type WSConfig struct {
	// WriteTimeout bounds every data, ping and close frame write.
	WriteTimeout time.Duration
	// PongWait is how long the socket may stay silent before it is dropped.
	PongWait time.Duration
	// PingPeriod must be shorter than PongWait.
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (c WSConfig) withDefaults() WSConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	return c
}

// WSConn adapts a gorilla connection to Conn. gorilla allows one concurrent
// writer, so data frames are serialized on writeMu; control frames use
// WriteControl, which is safe alongside them.
type WSConn struct {
	id     string
	userID string
	ws     *websocket.Conn
	cfg    WSConfig
	log    *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

var _ Conn = (*WSConn)(nil)

func NewWSConn(log *logger.Logger, ws *websocket.Conn, userID string, cfg WSConfig) *WSConn {
	id := uuid.NewString()
	return &WSConn{
		id:     id,
		userID: userID,
		ws:     ws,
		cfg:    cfg.withDefaults(),
		log:    log.With("component", "WSConn", "conn_id", id, "user_id", userID),
		done:   make(chan struct{}),
	}
}

func (c *WSConn) ID() string     { return c.id }
func (c *WSConn) UserID() string { return c.userID }

// Done is closed once the socket is closed from either side.
func (c *WSConn) Done() <-chan struct{} { return c.done }

func (c *WSConn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close sends a close frame with code and reason, then drops the socket.
// Later calls are no-ops.
func (c *WSConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
		if werr != nil && !isExpectedCloseError(werr) {
			err = fmt.Errorf("write close frame: %w", werr)
		}
		close(c.done)
		if cerr := c.ws.Close(); cerr != nil && err == nil && !isExpectedCloseError(cerr) {
			err = cerr
		}
	})
	return err
}

func (c *WSConn) drop() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Serve keeps the socket alive until the peer goes away or ctx ends. Inbound
// frames are read and discarded; the read side only exists to notice pongs,
// close frames and dead peers.
func (c *WSConn) Serve(ctx context.Context) {
	go c.pingLoop(ctx)

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			c.logReadError(err)
			break
		}
	}
	c.drop()
}

func (c *WSConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			_ = c.Close(websocket.CloseGoingAway, "server shutting down")
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.log.Debug("ping failed", "error", err)
				c.drop()
				return
			}
		}
	}
}

func (c *WSConn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("client frame exceeded read limit", "limit", c.cfg.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug("client closed connection", "error", err)
	case isExpectedCloseError(err):
		c.log.Debug("connection closed", "error", err)
	default:
		c.log.Info("websocket read error", "error", err)
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
