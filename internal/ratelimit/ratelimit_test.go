package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowPerClient(t *testing.T) {
	l := New(1, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")

	assert.True(t, l.Allow(a))
	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a), "burst exhausted")
	assert.True(t, l.Allow(b), "other clients keep their own bucket")

	now = now.Add(time.Second)
	assert.True(t, l.Allow(a), "token refilled")
}

func TestAllowDisabled(t *testing.T) {
	l := New(0, 0)
	ip := netip.MustParseAddr("10.0.0.1")
	for range 10 {
		assert.True(t, l.Allow(ip))
	}

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow(ip))
}

func TestIdleClientsSwept(t *testing.T) {
	l := New(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(netip.MustParseAddr("10.0.0.1"))
	now = now.Add(2 * idleTimeout)
	l.Allow(netip.MustParseAddr("10.0.0.2"))

	assert.Len(t, l.clients, 1)
}

func TestMiddleware(t *testing.T) {
	l := New(0.5, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("POST", "/login", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[::ffff:192.0.2.1]:80"
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), ClientIP(req))

	req.RemoteAddr = "garbage"
	assert.False(t, ClientIP(req).IsValid())
}
