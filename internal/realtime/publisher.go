package realtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
	"github.com/yungbote/social-backend/internal/realtime/bus"
)

// Publisher is the producer side of fan-out. It is fire-and-forget: Publish
// returns once the broker accepted the message and knows nothing about
// delivery.
type Publisher struct {
	log     *logger.Logger
	bus     bus.Bus
	metrics *observability.Metrics
}

func NewPublisher(log *logger.Logger, b bus.Bus, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		log:     log.With("component", "Publisher"),
		bus:     b,
		metrics: metrics,
	}
}

// Publish sends payload to every live socket of targets, on any process.
// An empty target list is a no-op.
func (p *Publisher) Publish(ctx context.Context, targets []string, payload any) error {
	if len(targets) == 0 {
		p.metrics.Published("noop")
		return nil
	}
	ctx, span := observability.Tracer().Start(ctx, "realtime.publish")
	defer span.End()
	span.SetAttributes(attribute.Int("fanout.targets", len(targets)))

	ev, err := NewEvent(targets, payload)
	if err != nil {
		p.metrics.Published("invalid")
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	data, err := EncodeEvent(ev)
	if err != nil {
		p.metrics.Published("invalid")
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := p.bus.Publish(ctx, data); err != nil {
		p.metrics.Published("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "broker publish failed")
		p.log.Warn("publish failed", "targets", len(targets), "error", err)
		return fmt.Errorf("publish fanout event: %w", err)
	}
	p.metrics.Published("ok")
	return nil
}
