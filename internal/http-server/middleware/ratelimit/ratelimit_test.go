package ratelimit_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"imageCutout/internal/http-server/middleware/ratelimit"
)

func TestAllowWithinLimit(t *testing.T) {
	limiter := ratelimit.New(30, time.Minute)

	for i := 0; i < 30; i++ {
		require.True(t, limiter.Allow("10.0.0.1"), "request %d should be admitted", i+1)
	}

	require.False(t, limiter.Allow("10.0.0.1"), "request 31 should be rejected")
	require.False(t, limiter.Allow("10.0.0.1"), "rejection must not free up slots")
}

func TestAllowIndependentClients(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute)

	require.True(t, limiter.Allow("10.0.0.1"))
	require.False(t, limiter.Allow("10.0.0.1"))
	require.True(t, limiter.Allow("10.0.0.2"))
}

func TestAllowResetsAfterWindow(t *testing.T) {
	limiter := ratelimit.New(2, 50*time.Millisecond)

	require.True(t, limiter.Allow("10.0.0.1"))
	require.True(t, limiter.Allow("10.0.0.1"))
	require.False(t, limiter.Allow("10.0.0.1"))

	time.Sleep(60 * time.Millisecond)

	require.True(t, limiter.Allow("10.0.0.1"), "window elapsed, admission should reset")
}

func TestSweepEvictsStaleClients(t *testing.T) {
	limiter := ratelimit.New(5, 20*time.Millisecond)

	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.2")
	require.Equal(t, 2, limiter.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go limiter.Run(ctx)

	require.Eventually(t, func() bool {
		return limiter.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestAllowConcurrent(t *testing.T) {
	limiter := ratelimit.New(100, time.Minute)

	var wg sync.WaitGroup
	admitted := make([]bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			admitted[i] = limiter.Allow("10.0.0.1")
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range admitted {
		if ok {
			count++
		}
	}
	require.Equal(t, 100, count)
}

func TestMiddleware(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil))
	limiter := ratelimit.New(1, time.Minute)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(log)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/images/abc", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.JSONEq(t, `{"status":"Error","error":"Too many requests"}`, rr.Body.String())
}

func TestMiddlewareHealthExempt(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil))
	limiter := ratelimit.New(1, time.Minute)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(log)(next)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{
			name:       "X-Forwarded-For first hop wins",
			remoteAddr: "127.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			expected:   "203.0.113.7",
		},
		{
			name:       "X-Real-IP fallback",
			remoteAddr: "127.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			expected:   "203.0.113.9",
		},
		{
			name:       "remote addr host",
			remoteAddr: "192.0.2.4:5678",
			expected:   "192.0.2.4",
		},
		{
			name:     "unknown when nothing set",
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			require.Equal(t, tt.expected, ratelimit.ClientKey(req))
		})
	}
}
