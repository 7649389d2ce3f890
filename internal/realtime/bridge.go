package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
	"github.com/yungbote/social-backend/internal/realtime/bus"
)

var (
	ErrBridgeRunning     = errors.New("bridge already running")
	ErrBrokerUnavailable = errors.New("broker unavailable")
)

type BridgeState int32

const (
	StateStopped BridgeState = iota
	StateSubscribing
	StateListening
)

func (s BridgeState) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateListening:
		return "listening"
	default:
		return "stopped"
	}
}

var bridgeStates = []string{StateStopped.String(), StateSubscribing.String(), StateListening.String()}

type BridgeConfig struct {
	// Workers is the number of goroutines running Dispatch.
	Workers int
	// QueueSize bounds events waiting for a worker.
	QueueSize int
	// EnqueueTimeout is how long the receive loop waits on a full queue
	// before dropping the event.
	EnqueueTimeout time.Duration
	// ReconnectMaxTries caps resubscribe attempts after an unexpected loss.
	// Zero disables reconnecting.
	ReconnectMaxTries uint
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
}

func (c BridgeConfig) withDefaults() BridgeConfig {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = 200 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 10 * time.Second
	}
	return c
}

// Bridge is the per-process subscriber: broker channel in, Dispatcher out.
// The receive loop only decodes and enqueues; delivery runs on a fixed
// worker pool so a slow socket never stalls the next broker message.
type Bridge struct {
	log        *logger.Logger
	bus        bus.Bus
	dispatcher *Dispatcher
	metrics    *observability.Metrics
	cfg        BridgeConfig

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBridge(log *logger.Logger, b bus.Bus, d *Dispatcher, metrics *observability.Metrics, cfg BridgeConfig) *Bridge {
	br := &Bridge{
		log:        log.With("component", "SubscriptionBridge"),
		bus:        b,
		dispatcher: d,
		metrics:    metrics,
		cfg:        cfg.withDefaults(),
	}
	br.setState(StateStopped)
	return br
}

func (b *Bridge) State() BridgeState { return BridgeState(b.state.Load()) }

func (b *Bridge) setState(s BridgeState) {
	prev := BridgeState(b.state.Swap(int32(s)))
	b.metrics.SetBridgeState(s.String(), bridgeStates...)
	if prev != s {
		b.log.Debug("bridge state", "from", prev.String(), "to", s.String())
	}
}

// Start opens the first subscription and returns once it is confirmed. The
// bridge then runs until Stop or until the broker is lost for good.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		select {
		case <-b.done:
		default:
			return ErrBridgeRunning
		}
	}

	b.setState(StateSubscribing)
	sub, err := b.bus.Subscribe(ctx)
	if err != nil {
		b.setState(StateStopped)
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.done = make(chan struct{})

	queue := make(chan Event, b.cfg.QueueSize)
	var workers sync.WaitGroup
	dispatchCtx := context.WithoutCancel(ctx)
	for i := 0; i < b.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			b.work(dispatchCtx, queue)
		}()
	}

	b.setState(StateListening)
	go func(done chan struct{}) {
		defer close(done)
		b.run(runCtx, sub, queue)
		close(queue)
		workers.Wait()
		b.metrics.SetQueueDepth(0)
		b.setState(StateStopped)
	}(b.done)

	b.log.Info("bridge listening", "workers", b.cfg.Workers, "queue_size", b.cfg.QueueSize)
	return nil
}

// Done is closed when the bridge has fully stopped. It is nil before Start.
func (b *Bridge) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Stop unsubscribes, lets workers finish queued events and waits for the
// bridge to reach STOPPED or for ctx to end. Safe to call more than once.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		b.log.Info("bridge stopped")
		return nil
	case <-ctx.Done():
		b.log.Warn("bridge stop timed out; abandoning queued deliveries", "error", ctx.Err())
		return ctx.Err()
	}
}

func (b *Bridge) run(ctx context.Context, sub bus.Subscription, queue chan<- Event) {
	for {
		b.listen(ctx, sub, queue)
		_ = sub.Close()

		if ctx.Err() != nil {
			b.log.Info("bridge unsubscribed on shutdown")
			return
		}
		b.log.Error("broker subscription lost")
		if b.cfg.ReconnectMaxTries == 0 {
			return
		}

		next, err := b.resubscribe(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.log.Error("bridge giving up on broker", "error", err)
			}
			return
		}
		sub = next
		b.setState(StateListening)
	}
}

func (b *Bridge) listen(ctx context.Context, sub bus.Subscription, queue chan<- Event) {
	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := DecodeEvent(data)
			if err != nil {
				b.metrics.EventReceived("malformed")
				b.log.Warn("dropping malformed event", "error", err, "bytes", len(data))
				continue
			}
			b.enqueue(ctx, queue, ev)
		}
	}
}

func (b *Bridge) enqueue(ctx context.Context, queue chan<- Event, ev Event) {
	select {
	case queue <- ev:
		b.metrics.EventReceived("queued")
		b.metrics.SetQueueDepth(len(queue))
		return
	default:
	}

	timer := time.NewTimer(b.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case queue <- ev:
		b.metrics.EventReceived("queued")
		b.metrics.SetQueueDepth(len(queue))
	case <-timer.C:
		b.metrics.EventReceived("dropped")
		b.log.Warn("dispatch queue full; dropping event", "targets", len(ev.TargetUserIDs), "queue_size", cap(queue))
	case <-ctx.Done():
		b.metrics.EventReceived("dropped")
	}
}

func (b *Bridge) work(ctx context.Context, queue <-chan Event) {
	for ev := range queue {
		b.metrics.SetQueueDepth(len(queue))
		b.dispatcher.Dispatch(ctx, ev)
	}
}

func (b *Bridge) resubscribe(ctx context.Context) (bus.Subscription, error) {
	b.setState(StateSubscribing)
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.cfg.ReconnectInitial
	eb.MaxInterval = b.cfg.ReconnectMax

	attempt := 0
	return backoff.Retry(ctx, func() (bus.Subscription, error) {
		attempt++
		sub, err := b.bus.Subscribe(ctx)
		if errors.Is(err, bus.ErrClosed) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			return nil, err
		}
		b.log.Info("bridge resubscribed", "attempt", attempt)
		return sub, nil
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(b.cfg.ReconnectMaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			b.log.Warn("resubscribe failed", "attempt", attempt, "retry_in", wait.String(), "error", err)
		}),
	)
}
