package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/social-backend/internal/realtime/bus"
)

type failingBus struct {
	bus.Bus
	publishErr error

	mu           sync.Mutex
	subscribeErr error
	subscribes   int
}

func (f *failingBus) failSubscribe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr = err
}

func (f *failingBus) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func (f *failingBus) Publish(ctx context.Context, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	return f.Bus.Publish(ctx, data)
}

func (f *failingBus) Subscribe(ctx context.Context) (bus.Subscription, error) {
	f.mu.Lock()
	f.subscribes++
	err := f.subscribeErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Bus.Subscribe(ctx)
}

func TestPublishWritesWireEvent(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	p := NewPublisher(nopLogger(), b, nil)
	require.NoError(t, p.Publish(context.Background(), []string{"u1", "u2"}, map[string]string{"type": "notification"}))

	select {
	case data := <-sub.Messages():
		assert.JSONEq(t, `{"target_user_ids":["u1","u2"],"payload":{"type":"notification"}}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("nothing published")
	}
}

func TestPublishEmptyTargetsIsNoop(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	p := NewPublisher(nopLogger(), b, nil)
	require.NoError(t, p.Publish(context.Background(), nil, map[string]string{"type": "x"}))
	require.NoError(t, p.Publish(context.Background(), []string{}, "not even an object"))

	select {
	case data := <-sub.Messages():
		t.Fatalf("unexpected publish: %s", data)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestPublishRejectsNonObjectPayload(t *testing.T) {
	p := NewPublisher(nopLogger(), bus.NewMemoryBus(), nil)
	assert.ErrorIs(t, p.Publish(context.Background(), []string{"u1"}, []string{"a"}), ErrInvalidPayload)
}

func TestPublishSurfacesBrokerErrors(t *testing.T) {
	down := errors.New("connection refused")
	p := NewPublisher(nopLogger(), &failingBus{Bus: bus.NewMemoryBus(), publishErr: down}, nil)
	assert.ErrorIs(t, p.Publish(context.Background(), []string{"u1"}, map[string]int{"n": 1}), down)
}
