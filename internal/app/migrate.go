package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanojo/studio/internal/config"
	"github.com/kanojo/studio/internal/db"
	"github.com/kanojo/studio/internal/logging"
)

const (
	migrationMaxRetries  = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

const ensureMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func runMigrations(ctx context.Context, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "up", "status":
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	dir, err := resolveDir(cfg.MigrationDir)
	if err != nil {
		return err
	}
	migrations, err := listMigrations(dir)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}

	if command == "status" {
		for _, name := range migrations {
			_, ok := applied[name]
			logger.Info("migration status", "version", name, "applied", ok)
		}
		return nil
	}

	pending := 0
	for _, name := range migrations {
		if _, ok := applied[name]; ok {
			continue
		}
		pending++

		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := applyMigrationWithRetry(ctx, logger, conn, name, string(contents)); err != nil {
			return err
		}
		logger.Info("applied migration", "version", name)
	}
	if pending == 0 {
		logger.Info("database schema is up to date", "migrations", len(migrations))
	}
	return nil
}

func runSeed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir, err := resolveDir(cfg.SeedDir)
	if err != nil {
		return err
	}
	name := seedFileName(args[0])
	contents, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", name, err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply seed %s: %w", name, err)
	}

	logging.New(os.Stdout, cfg.LogLevel).Info("applied seed", "seed", name)
	return nil
}

// resolveDir makes dir absolute relative to the working directory.
func resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}

// listMigrations returns the .sql files in dir sorted by name.
func listMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	return names, nil
}

func seedFileName(name string) string {
	if strings.HasSuffix(name, ".sql") {
		return name
	}
	return name + "_seed.sql"
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]struct{}, error) {
	if _, err := conn.Exec(ctx, ensureMigrationsTable); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	applied := make(map[string]struct{}, len(versions))
	for _, version := range versions {
		applied[version] = struct{}{}
	}
	return applied, nil
}

// applyMigrationWithRetry runs one migration and records it in a single
// serializable transaction, retrying transient failures with backoff.
func applyMigrationWithRetry(ctx context.Context, logger *slog.Logger, conn *pgxpool.Conn, name string, contents string) error {
	var lastErr error
	for attempt := 0; attempt < migrationMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, migrationBackoff(attempt)); err != nil {
				return err
			}
		}

		stage, err := applyMigration(ctx, conn, name, contents)
		if err == nil {
			return nil
		}
		if !shouldRetryMigration(err) {
			return fmt.Errorf("%s migration %s: %w", stage, name, err)
		}
		lastErr = err
		logger.Warn("transient migration error", "stage", stage, "version", name, "attempt", attempt+1, "maxAttempts", migrationMaxRetries, "error", err)
	}

	return fmt.Errorf("apply migration %s: exceeded max retries (%d): %w", name, migrationMaxRetries, lastErr)
}

// applyMigration reports the stage that failed alongside the error.
func applyMigration(ctx context.Context, conn *pgxpool.Conn, name, contents string) (string, error) {
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return "begin", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, contents); err != nil {
		return "apply", err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return "record", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "commit", err
	}
	return "", nil
}

func migrationBackoff(attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * migrationBaseBackoff
	return min(backoff, migrationMaxBackoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryablePgErrorCodes[pgErr.Code]
		return ok
	}
	return false
}
