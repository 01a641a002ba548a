package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanojo/studio/internal/config"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func (fakePool) Ping(context.Context) error { return nil }

func testConfig() config.Config {
	return config.Config{
		Environment: config.EnvDevelopment,
		Session: config.SessionConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
			Store:      config.SessionStorePostgres,
			CookieWait: time.Second,
		},
		ObjectStore: config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"},
		RateLimit:   config.RateLimitConfig{Requests: 10, Window: time.Minute, Burst: 5, TrustedProxies: []string{"10.0.0.0/8"}},
	}
}

func TestBuildDependencies(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	built, err := buildDependencies(context.Background(), fakePool{}, testConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = built.cleanup(ctx)
	}()

	deps := built.handlers
	if deps.Auth == nil || deps.Exchanger == nil || built.sessions == nil {
		t.Fatal("expected auth service and exchanger to be configured")
	}
	if deps.Generator == nil || deps.Generations == nil || deps.Moments == nil {
		t.Fatal("expected generation pipeline and gallery stores to be configured")
	}
	if deps.Objects == nil {
		t.Fatal("expected object storage to be configured")
	}
	if deps.Database == nil {
		t.Fatal("expected database pinger to be configured")
	}
	if deps.RateLimiter == nil {
		t.Fatal("expected rate limiter to be configured")
	}
	if len(deps.TrustedProxies) != 1 || deps.TrustedProxies[0].String() != "10.0.0.0/8" {
		t.Fatalf("unexpected trusted proxies %v", deps.TrustedProxies)
	}
	if built.metrics == nil || deps.MetricsHandler == nil {
		t.Fatal("expected metrics to be configured")
	}
	if !deps.Local {
		t.Fatal("expected development config to be local")
	}

	rec := httptest.NewRecorder()
	deps.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint to respond, got %d", rec.Code)
	}
}

func TestBuildDependenciesRequiresSecretInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = config.EnvProduction

	if _, err := buildDependencies(context.Background(), fakePool{}, cfg, nil); err == nil {
		t.Fatal("expected missing jwt secret to fail outside development")
	}
}

func TestBuildDependenciesRejectsInvalidTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.TrustedProxies = []string{"not-a-network"}

	if _, err := buildDependencies(context.Background(), fakePool{}, cfg, nil); err == nil {
		t.Fatal("expected invalid trusted proxy to fail")
	}
}

func TestBuildDependenciesDisablesRateLimiting(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg := testConfig()
	cfg.RateLimit.Requests = 0

	built, err := buildDependencies(context.Background(), fakePool{}, cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = built.cleanup(context.Background()) }()

	if built.handlers.RateLimiter != nil {
		t.Fatal("expected rate limiting to be disabled")
	}
}
