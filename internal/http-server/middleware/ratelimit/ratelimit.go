package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"

	"imageCutout/internal/lib/api/response"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window per-client admission counter. Counters reset only
// when their window ends, so a burst straddling a window boundary can see up
// to twice the configured maximum inside one period.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	max     int
	period  time.Duration
}

func New(maxRequests int, period time.Duration) *Limiter {
	return &Limiter{
		clients: make(map[string]*window),
		max:     maxRequests,
		period:  period,
	}
}

// Allow reports whether the client identified by key may proceed, counting
// this request against the current window.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[key]
	if !ok {
		w = &window{}
		l.clients[key] = w
	}

	if !ok || now.After(w.resetAt) {
		w.count = 1
		w.resetAt = now.Add(l.period)
		return true
	}

	if w.count >= l.max {
		return false
	}

	w.count++
	return true
}

// Run sweeps expired windows once per period until ctx is cancelled, so memory
// stays bounded by the number of recently active clients.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(time.Now())
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.clients {
		if now.After(w.resetAt) {
			delete(l.clients, key)
		}
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.clients)
}

// Middleware rejects over-limit clients with 429. The liveness endpoint is
// exempt so orchestrators are never locked out.
func (l *Limiter) Middleware(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			key := ClientKey(r)
			if !l.Allow(key) {
				log.Warn("rate limit exceeded", slog.String("client", key))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("Too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey picks a best-effort client identity: the first X-Forwarded-For
// hop, then X-Real-IP, then the socket address.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
