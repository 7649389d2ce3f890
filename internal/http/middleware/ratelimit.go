package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yungbote/social-backend/internal/observability"
)

const limiterIdleExpiry = 5 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// HandshakeLimiter is a token bucket per client IP for socket handshakes.
// Over-limit clients still get a websocket, closed at once with 1013.
type HandshakeLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	clients map[string]*ipLimiter
	metrics *observability.Metrics
	now     func() time.Time
}

// NewHandshakeLimiter returns nil when perSecond <= 0, which disables limiting.
func NewHandshakeLimiter(perSecond float64, burst int, metrics *observability.Metrics) *HandshakeLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &HandshakeLimiter{
		perSec:  rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*ipLimiter),
		metrics: metrics,
		now:     time.Now,
	}
}

func (l *HandshakeLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	entry, ok := l.clients[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Sweep forgets clients idle for longer than the expiry window.
func (l *HandshakeLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-limiterIdleExpiry)
	removed := 0
	for ip, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until stop is closed.
func (l *HandshakeLimiter) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

const throttledKey = "handshake_throttled"

// Middleware marks over-limit handshakes instead of aborting them, so the
// socket handler can finish the upgrade and close with 1013.
func (l *HandshakeLimiter) Middleware() gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			l.metrics.Handshake("rate_limited")
			c.Set(throttledKey, true)
		}
		c.Next()
	}
}

// Throttled reports whether Middleware refused this request's handshake.
func Throttled(c *gin.Context) bool {
	return c.GetBool(throttledKey)
}
