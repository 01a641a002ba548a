package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kanojo/studio/internal/auth"
	"github.com/kanojo/studio/internal/config"
	"github.com/kanojo/studio/internal/db"
	"github.com/kanojo/studio/internal/generations"
	"github.com/kanojo/studio/internal/handlers"
	"github.com/kanojo/studio/internal/imagegen"
	"github.com/kanojo/studio/internal/metrics"
	"github.com/kanojo/studio/internal/middleware"
	"github.com/kanojo/studio/internal/repositories"
	"github.com/kanojo/studio/internal/storage"
)

// components is everything serve needs besides the database pool.
type components struct {
	handlers handlers.Dependencies
	sessions middleware.SessionChecker
	metrics  *metrics.Metrics
	cleanup  func(context.Context) error
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// Optional integrations that are not configured are left out and logged; the
// handlers answer with the usual failure messages until they are configured.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return components{}, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	sessionStore, closeStore, err := newSessionStore(ctx, pool, cfg.Session)
	if err != nil {
		return components{}, err
	}

	secret := cfg.Session.JWTSecret
	if secret == "" {
		if !cfg.IsLocal() {
			_ = closeStore()
			return components{}, errors.New("KANOJO_JWT_SECRET is required outside development")
		}
		logger.Warn("using development jwt secret")
		secret = "kanojo-development-secret"
	}
	sessions := auth.NewManager(cfg.Session.AccessTTL, cfg.Session.RefreshTTL, []byte(secret), sessionStore)
	sessions.WithReuseGrace(cfg.Session.ReuseGrace)

	var provider auth.IdentityProvider
	if cfg.OIDC.ClientID != "" {
		oidcProvider, err := auth.NewOIDCProvider(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret, cfg.OIDC.RedirectURL)
		if err != nil {
			_ = closeStore()
			return components{}, err
		}
		provider = oidcProvider
	} else {
		logger.Warn("oidc client not configured, sign-in disabled")
	}

	users := repositories.NewPostgresUserRepository(pool)
	authService := auth.NewService(provider, users, sessions, logger)
	unsubscribe := authService.OnAuthStateChange(func(change auth.StateChange) {
		appMetrics.ObserveAuthEvent(string(change.Event))
	})

	objects, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		unsubscribe()
		_ = closeStore()
		return components{}, err
	}

	var generator generations.Generator
	if cfg.Generation.APIKey != "" {
		gemini, err := imagegen.NewGeminiGenerator(ctx, cfg.Generation.APIKey, cfg.Generation.Model, imagegen.Options{})
		if err != nil {
			unsubscribe()
			_ = closeStore()
			return components{}, err
		}
		generator = gemini
	} else {
		logger.Warn("gemini api key not configured, generation disabled")
	}

	generationStore := repositories.NewPostgresGenerationRepository(pool)
	orchestrator := generations.NewOrchestrator(generator, generationStore, objects).
		WithObserver(appMetrics).
		WithTimeout(cfg.Generation.Timeout)

	deps := handlers.Dependencies{
		Auth:            authService,
		Exchanger:       auth.NewExchanger(authService, cfg.Session.CookieWait),
		ExchangeMetrics: appMetrics,
		Generator:       orchestrator,
		Generations:     generationStore,
		Moments:         repositories.NewPostgresMomentRepository(pool),
		Objects:         objects,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		TrustedProxies:  proxies,
		StaticDir:       cfg.StaticDir,
		Local:           cfg.IsLocal(),
	}
	if pinger, ok := pool.(handlers.Pinger); ok {
		deps.Database = pinger
	}
	if cfg.RateLimit.Requests > 0 {
		deps.RateLimiter = middleware.NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, 0)
	}

	cleanup := func(context.Context) error {
		unsubscribe()
		return closeStore()
	}

	return components{
		handlers: deps,
		sessions: authService,
		metrics:  appMetrics,
		cleanup:  cleanup,
	}, nil
}

func newSessionStore(ctx context.Context, pool db.Pool, cfg config.SessionConfig) (auth.SessionStore, func() error, error) {
	switch cfg.Store {
	case config.SessionStoreRedis:
		client, err := db.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: %w", err)
		}
		return repositories.NewRedisSessionStore(client), closeRedis(client), nil
	default:
		return repositories.NewPostgresSessionStore(pool), func() error { return nil }, nil
	}
}

func closeRedis(client *redis.Client) func() error {
	return func() error {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
		return nil
	}
}
