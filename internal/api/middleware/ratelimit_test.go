package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeLimiter struct {
	counts map[string]int
	err    error
}

func (f *fakeLimiter) CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[key]++
	return f.counts[key] <= limit, f.counts[key], nil
}

func serve(h http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("limits per client address", func(t *testing.T) {
		limiter := &fakeLimiter{counts: map[string]int{}}
		h := NewRateLimitMiddleware(limiter, 2, time.Minute, zap.NewNop()).Handler(ok)

		for i := 0; i < 2; i++ {
			if rec := serve(h, "/api/v1/scans", "10.0.0.1:5000"); rec.Code != http.StatusOK {
				t.Fatalf("request %d status = %d, want 200", i, rec.Code)
			}
		}

		rec := serve(h, "/api/v1/scans", "10.0.0.1:5001")
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
		}
		if got := rec.Header().Get("Retry-After"); got != "60" {
			t.Errorf("Retry-After = %q, want 60", got)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
			t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
		}

		if rec := serve(h, "/api/v1/scans", "10.0.0.2:5000"); rec.Code != http.StatusOK {
			t.Errorf("other client status = %d, want 200", rec.Code)
		}
	})

	t.Run("sets limit headers", func(t *testing.T) {
		limiter := &fakeLimiter{counts: map[string]int{}}
		h := NewRateLimitMiddleware(limiter, 60, time.Minute, nil).Handler(ok)

		rec := serve(h, "/api/tailor", "10.0.0.1:5000")
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "60" {
			t.Errorf("X-RateLimit-Limit = %q, want 60", got)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != "59" {
			t.Errorf("X-RateLimit-Remaining = %q, want 59", got)
		}
	})

	t.Run("skips probes", func(t *testing.T) {
		limiter := &fakeLimiter{counts: map[string]int{}}
		h := NewRateLimitMiddleware(limiter, 1, time.Minute, nil).Handler(ok)

		for _, path := range []string{"/health", "/ready", "/metrics", "/health"} {
			if rec := serve(h, path, "10.0.0.1:5000"); rec.Code != http.StatusOK {
				t.Errorf("%s status = %d, want 200", path, rec.Code)
			}
		}
		if len(limiter.counts) != 0 {
			t.Errorf("probes were counted: %v", limiter.counts)
		}
	})

	t.Run("fails open on limiter error", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("connection refused")}
		h := NewRateLimitMiddleware(limiter, 1, time.Minute, nil).Handler(ok)

		if rec := serve(h, "/api/v1/scans", "10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("disabled without limiter", func(t *testing.T) {
		h := NewRateLimitMiddleware(nil, 1, time.Minute, nil).Handler(ok)
		for i := 0; i < 3; i++ {
			if rec := serve(h, "/api/v1/scans", "10.0.0.1:5000"); rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		}
	})
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"10.0.0.1:5000", "ip:10.0.0.1"},
		{"[::1]:8080", "ip:::1"},
		{"10.0.0.9", "ip:10.0.0.9"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tt.remote
		if got := clientKey(req); got != tt.want {
			t.Errorf("clientKey(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}
