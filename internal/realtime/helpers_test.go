package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/social-backend/internal/platform/logger"
)

type fakeConn struct {
	id    string
	recv  chan []byte
	block chan struct{}
	fail  error
	panic bool

	mu        sync.Mutex
	closeCode int
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString(), recv: make(chan []byte, 64)}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(ctx context.Context, payload []byte) error {
	if f.panic {
		panic("send exploded")
	}
	if f.fail != nil {
		return f.fail
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrConnClosed
	}
	f.recv <- append([]byte(nil), payload...)
	return nil
}

func (f *fakeConn) Close(code int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	f.closeCode = code
	return nil
}

func (f *fakeConn) closedWith() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode
}

func expectPayload(t *testing.T, c *fakeConn, timeout time.Duration) []byte {
	t.Helper()
	select {
	case msg := <-c.recv:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for delivery on %s", c.id)
	}
	return nil
}

func expectNothing(t *testing.T, c *fakeConn, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-c.recv:
		t.Fatalf("unexpected delivery on %s: %s", c.id, msg)
	case <-time.After(wait):
	}
}

func nopLogger() *logger.Logger { return logger.NewNop() }
