package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/social-backend/internal/platform/logger"
)

func newRedisBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	b, err := NewRedisBus(logger.NewNop(), rdb, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bus message")
	}
	return nil
}

func TestRedisBusDefaultsChannel(t *testing.T) {
	b, _ := newRedisBus(t)
	assert.Equal(t, DefaultChannel, b.Channel())
}

func TestRedisBusFanOutToEverySubscriber(t *testing.T) {
	b, _ := newRedisBus(t)
	ctx := context.Background()

	s1, err := b.Subscribe(ctx)
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, []byte(`{"target_user_ids":["u1"],"payload":{}}`)))

	assert.JSONEq(t, `{"target_user_ids":["u1"],"payload":{}}`, string(recv(t, s1.Messages())))
	assert.JSONEq(t, `{"target_user_ids":["u1"],"payload":{}}`, string(recv(t, s2.Messages())))
}

func TestRedisBusSeesForeignPublishers(t *testing.T) {
	b, mr := newRedisBus(t)
	s, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	mr.Publish(DefaultChannel, "from-another-process")
	assert.Equal(t, "from-another-process", string(recv(t, s.Messages())))
}

func TestRedisBusCloseEndsSubscriptions(t *testing.T) {
	b, _ := newRedisBus(t)
	s, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Close())
	select {
	case _, ok := <-s.Messages():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed")
	}

	assert.ErrorIs(t, b.Publish(context.Background(), []byte("x")), ErrClosed)
	_, err = b.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestRedisBusSubscribeFailsWhenBrokerDown(t *testing.T) {
	b, mr := newRedisBus(t)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := b.Subscribe(ctx)
	assert.Error(t, err)
}

func TestRedisBusSubscriptionEndsWhenBrokerDrops(t *testing.T) {
	b, mr := newRedisBus(t)
	s, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	mr.Close()
	select {
	case _, ok := <-s.Messages():
		assert.False(t, ok, "expected the subscription to end")
	case <-time.After(3 * time.Second):
		t.Fatalf("subscription still open after broker went away")
	}
	assert.NoError(t, s.Close())
}

func TestRedisBusIdleSubscriptionStaysOpen(t *testing.T) {
	b, mr := newRedisBus(t)
	b.idle = 20 * time.Millisecond
	s, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	// Several idle timeouts and health pings pass without ending it.
	time.Sleep(200 * time.Millisecond)
	mr.Publish(DefaultChannel, "still-here")
	assert.Equal(t, "still-here", string(recv(t, s.Messages())))
}
