package bus

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("bus closed")

// Bus is the shared broker channel between processes. Every subscription on
// every process receives every published message.
type Bus interface {
	Publish(ctx context.Context, data []byte) error
	// Subscribe returns once the broker has confirmed the subscription.
	Subscribe(ctx context.Context) (Subscription, error)
	Close() error
}

type Subscription interface {
	// Messages is closed when the subscription ends, whether through Close or
	// because the broker dropped it.
	Messages() <-chan []byte
	Close() error
}
