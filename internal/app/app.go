package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kanojo/studio/internal/config"
	"github.com/kanojo/studio/internal/db"
	"github.com/kanojo/studio/internal/handlers"
	"github.com/kanojo/studio/internal/httpserver"
	"github.com/kanojo/studio/internal/logging"
	"github.com/kanojo/studio/internal/middleware"
)

// Run dispatches one of the serve, migrate or seed commands.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	built, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.cleanup(context.Background()); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, built.handlers)

	guard := middleware.RouteGuard(built.sessions, middleware.DefaultGuardConfig(cfg.IsLocal()), built.metrics)
	handler := middleware.RequestLogger(logger)(guard(mux))

	srv := httpserver.New(cfg.AppPort, cfg.WriteTimeout, handler)

	logger.Info("starting http server", "port", cfg.AppPort, "environment", cfg.Environment)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
