package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yungbote/social-backend/internal/platform/logger"
)

type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// BreakerStore fails revocation lookups fast while the backing store is down,
// so handshakes are rejected immediately instead of queueing on dial timeouts.
type BreakerStore struct {
	next RevocationStore
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(log *logger.Logger, next RevocationStore, s BreakerSettings) *BreakerStore {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 10 * time.Second
	}
	log = log.With("component", "RevocationBreaker")
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "revocation-store",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.IsRevoked(ctx, tokenID)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *BreakerStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration, entry RevocationEntry) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Revoke(ctx, tokenID, ttl, entry)
	})
	return err
}

func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }
