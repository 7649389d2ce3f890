package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for single-node runs and tests. Publish
// never blocks on a slow subscriber; a full subscriber buffer drops the
// message, matching the best-effort contract of the broker.
type MemoryBus struct {
	mu      sync.Mutex
	subs    map[*memorySubscription]struct{}
	closed  bool
	bufSize int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[*memorySubscription]struct{}{}, bufSize: 256}
}

func (b *MemoryBus) Publish(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs {
		msg := append([]byte(nil), data...)
		select {
		case s.out <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memorySubscription{bus: b, out: make(chan []byte, b.bufSize)}
	b.subs[s] = struct{}{}
	return s, nil
}

// Subscribers reports how many subscriptions are open.
func (b *MemoryBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Drop ends every open subscription as if the broker connection was lost.
// The bus itself stays usable.
func (b *MemoryBus) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.closeLocked()
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		s.closeLocked()
	}
	return nil
}

type memorySubscription struct {
	bus    *MemoryBus
	out    chan []byte
	closed bool
}

func (s *memorySubscription) Messages() <-chan []byte { return s.out }

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
	return nil
}

// closeLocked requires bus.mu.
func (s *memorySubscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	delete(s.bus.subs, s)
	close(s.out)
}
