package realtime

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
)

type DispatcherConfig struct {
	// Concurrency caps simultaneous sends for one event.
	Concurrency int
	// SendTimeout bounds a single socket write.
	SendTimeout time.Duration
}

// DeliveryReport summarizes one Dispatch call.
type DeliveryReport struct {
	Targets   int
	Skipped   int
	Delivered int
	Failed    int
}

// Dispatcher delivers an event to the sockets held on this process.
// Delivery is best-effort: a failed socket is logged and left for its own
// read loop to unregister.
type Dispatcher struct {
	log      *logger.Logger
	registry *Registry
	metrics  *observability.Metrics
	cfg      DispatcherConfig
}

func NewDispatcher(log *logger.Logger, registry *Registry, metrics *observability.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		log:      log.With("component", "FanoutDispatcher"),
		registry: registry,
		metrics:  metrics,
		cfg:      cfg,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) DeliveryReport {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "realtime.dispatch")
	defer span.End()

	targets := uniqueTargets(ev.TargetUserIDs)
	report := DeliveryReport{Targets: len(targets)}

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	var delivered, failed atomic.Int64

	for _, userID := range targets {
		conns := d.registry.SnapshotFor(userID)
		if len(conns) == 0 {
			report.Skipped++
			continue
		}
		for _, c := range conns {
			g.Go(func() error {
				if err := d.deliver(ctx, userID, c, ev.Payload); err != nil {
					failed.Add(1)
					return nil
				}
				delivered.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())
	d.metrics.ObserveDispatch(report.Delivered, report.Failed, time.Since(start))

	span.SetAttributes(
		attribute.Int("fanout.targets", report.Targets),
		attribute.Int("fanout.skipped", report.Skipped),
		attribute.Int("fanout.delivered", report.Delivered),
		attribute.Int("fanout.failed", report.Failed),
	)
	if report.Failed > 0 {
		span.SetStatus(codes.Error, "partial delivery")
	}
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, userID string, c Conn, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			d.log.Error("delivery panicked", "user_id", userID, "conn_id", c.ID(), "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	if err = c.Send(sendCtx, payload); err != nil {
		d.log.Warn("delivery failed", "user_id", userID, "conn_id", c.ID(), "error", err)
		return err
	}
	return nil
}
