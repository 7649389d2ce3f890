package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/social-backend/internal/platform/logger"
)

const DefaultChannel = "chat_broadcast_channel"

// healthInterval is how long a quiet subscription waits before pinging the
// server to confirm the connection is still there.
const healthInterval = 5 * time.Second

// RedisBus publishes on a single Redis pub/sub channel. It borrows the client;
// closing the bus closes open subscriptions, never the client itself.
type RedisBus struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
	bufSize int
	idle    time.Duration

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

func NewRedisBus(log *logger.Logger, rdb goredis.UniversalClient, channel string) (*RedisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		log:     log.With("service", "RedisBus", "channel", channel),
		rdb:     rdb,
		channel: channel,
		bufSize: 256,
		idle:    healthInterval,
		subs:    map[*redisSubscription]struct{}{},
	}, nil
}

func (b *RedisBus) Channel() string { return b.channel }

func (b *RedisBus) Publish(ctx context.Context, data []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (Subscription, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	ps := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	s := &redisSubscription{
		ps:   ps,
		out:  make(chan []byte, b.bufSize),
		done: make(chan struct{}),
	}
	s.onClose = func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ps.Close()
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump(b.log, b.idle)
	b.log.Debug("subscribed")
	return s, nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type redisSubscription struct {
	ps      *goredis.PubSub
	out     chan []byte
	done    chan struct{}
	once    sync.Once
	err     error
	onClose func()
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

// pump reads the connection directly rather than through PubSub.Channel,
// which reconnects silently and would hide a broker outage. Any error other
// than an idle timeout ends the subscription by closing out.
func (s *redisSubscription) pump(log *logger.Logger, idle time.Duration) {
	defer close(s.out)
	ctx := context.Background()
	for {
		msg, err := s.ps.ReceiveTimeout(ctx, idle)
		select {
		case <-s.done:
			return
		default:
		}
		if err != nil {
			if isTimeout(err) {
				if err = s.ps.Ping(ctx); err == nil {
					continue
				}
			}
			log.Warn("redis subscription lost", "error", err)
			return
		}
		m, ok := msg.(*goredis.Message)
		if !ok {
			// subscription confirmations and pongs
			continue
		}
		select {
		case s.out <- []byte(m.Payload):
		case <-s.done:
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.err
}
