package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/social-backend/internal/platform/envutil"
	"github.com/yungbote/social-backend/internal/platform/logger"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver, so
// components take a *Metrics without caring whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	authRejected    *prometheus.CounterVec
	connections     prometheus.Gauge
	connectedUsers  prometheus.Gauge
	handshakes      *prometheus.CounterVec
	published       *prometheus.CounterVec
	eventsReceived  *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	dispatchLatency prometheus.Histogram
	queueDepth      prometheus.Gauge
	bridgeState     *prometheus.GaugeVec

	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sb_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sb_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sb_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		authRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sb_auth_rejected_total",
			Help: "Rejected credentials by reason.",
		}, []string{"reason"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sb_realtime_connections",
			Help: "Live sockets held by this process.",
		}),
		connectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sb_realtime_connected_users",
			Help: "Distinct users with at least one live socket on this process.",
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sb_realtime_handshakes_total",
			Help: "Socket handshakes by outcome.",
		}, []string{"outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sb_realtime_published_total",
			Help: "Fan-out events published by result.",
		}, []string{"result"}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sb_realtime_events_received_total",
			Help: "Broker messages received by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sb_realtime_deliveries_total",
			Help: "Per-socket deliveries by result.",
		}, []string{"result"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sb_realtime_dispatch_duration_seconds",
			Help:    "Time to deliver one event to every local socket.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1, 5},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sb_realtime_dispatch_queue_depth",
			Help: "Events waiting for a dispatch worker.",
		}),
		bridgeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sb_realtime_bridge_state",
			Help: "1 for the subscription bridge's current state.",
		}, []string{"state"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sb_redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sb_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
	reg.MustRegister(
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.authRejected,
		m.connections,
		m.connectedUsers,
		m.handshakes,
		m.published,
		m.eventsReceived,
		m.deliveries,
		m.dispatchLatency,
		m.queueDepth,
		m.bridgeState,
		m.redisUp,
		m.redisPing,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) AuthRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.authRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Handshake(outcome string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetConnections(sockets, users int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(sockets))
	m.connectedUsers.Set(float64(users))
}

func (m *Metrics) Published(result string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(result).Inc()
}

func (m *Metrics) EventReceived(outcome string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDispatch(delivered, failed int, dur time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("ok").Add(float64(delivered))
	m.deliveries.WithLabelValues("failed").Add(float64(failed))
	m.dispatchLatency.Observe(dur.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetBridgeState flags current and zeroes every other known state.
func (m *Metrics) SetBridgeState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.bridgeState.WithLabelValues(s).Set(0)
	}
	m.bridgeState.WithLabelValues(current).Set(1)
}

// StartRedisCollector pings the shared client on an interval until ctx ends.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil && ctx.Err() == nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
