package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuthRejected("revoked")
		m.Handshake("accepted")
		m.SetConnections(1, 1)
		m.Published("ok")
		m.EventReceived("malformed")
		m.ObserveDispatch(1, 0, time.Millisecond)
		m.SetQueueDepth(3)
		m.SetBridgeState("listening", "stopped")
		m.ObserveAPI("GET", "/x", "200", time.Millisecond)
		m.ApiInflightInc()
		m.ApiInflightDec()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCountersAndBridgeState(t *testing.T) {
	m := New()

	m.AuthRejected("revoked")
	m.AuthRejected("revoked")
	m.AuthRejected("")
	m.ObserveDispatch(3, 1, 2*time.Millisecond)
	m.SetBridgeState("subscribing", "stopped", "subscribing", "listening")
	m.SetBridgeState("listening", "stopped", "subscribing", "listening")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authRejected.WithLabelValues("revoked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authRejected.WithLabelValues("unknown")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.deliveries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.bridgeState.WithLabelValues("subscribing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bridgeState.WithLabelValues("listening")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sb_auth_rejected_total"))
}
