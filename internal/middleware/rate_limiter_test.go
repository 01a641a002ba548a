package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiterAllowsBurstThenRefills(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(1, time.Second, 2, time.Minute)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("expected burst of two to be allowed")
	}
	if limiter.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("b") {
		t.Fatal("keys should not share budgets")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("a") {
		t.Fatal("expected a token after one window")
	}
}

func TestIPRateLimiterForgetsIdleKeys(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(1, time.Second, 1, time.Minute)
	limiter.WithNowFunc(func() time.Time { return now })

	limiter.Allow("a")
	limiter.Allow("b")
	if limiter.Len() != 2 {
		t.Fatalf("expected 2 tracked keys got %d", limiter.Len())
	}

	now = now.Add(2 * time.Minute)
	limiter.Allow("c")
	if limiter.Len() != 1 {
		t.Fatalf("expected idle keys to be collected, got %d", limiter.Len())
	}
}

type denyAll struct{ keys []string }

func (d *denyAll) Allow(key string) bool {
	d.keys = append(d.keys, key)
	return false
}

func TestLimitRejectsWith429(t *testing.T) {
	limiter := &denyAll{}
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("parse proxies: %v", err)
	}
	handler := Limit(limiter, "generate", proxies)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json body got %s", got)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "generate:203.0.113.7" {
		t.Fatalf("unexpected keys %v", limiter.keys)
	}
}
