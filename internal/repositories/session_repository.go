package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kanojo/studio/internal/auth"
	"github.com/kanojo/studio/internal/db"
)

// PostgresSessionStore keeps refresh sessions in the sessions table. A
// rotated row stays behind, pointing at its successor, until its shortened
// expiry passes.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save inserts a fresh session, replacing any row with the same token.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := insertSession(ctx, conn, session); err != nil {
		return err
	}
	return nil
}

// Find loads a session by its refresh token, including rotation state.
func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		session   auth.Session
		rotatedTo *string
		rotatedAt *time.Time
	)
	err = conn.QueryRow(ctx, `
        SELECT refresh_token, user_id, expires_at, rotated_to, rotated_at
        FROM sessions
        WHERE refresh_token = $1
    `, refreshToken).Scan(&session.RefreshToken, &session.UserID, &session.ExpiresAt, &rotatedTo, &rotatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}

	session.ExpiresAt = session.ExpiresAt.UTC()
	if rotatedTo != nil && rotatedAt != nil {
		session.RotatedTo = *rotatedTo
		session.RotatedAt = rotatedAt.UTC()
	}
	return session, nil
}

// Rotate marks refreshToken as replaced and inserts successor in one
// transaction. Only one of several concurrent rotations of the same token
// succeeds; the others get auth.ErrSessionRotated.
func (s *PostgresSessionStore) Rotate(ctx context.Context, refreshToken string, successor auth.Session, at, retainUntil time.Time) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
        UPDATE sessions
        SET rotated_to = $2, rotated_at = $3, expires_at = LEAST(expires_at, $4)
        WHERE refresh_token = $1 AND rotated_to IS NULL
    `, refreshToken, successor.RefreshToken, at.UTC(), retainUntil.UTC())
	if err != nil {
		return fmt.Errorf("mark session rotated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE refresh_token = $1)`, refreshToken).Scan(&exists); err != nil {
			return fmt.Errorf("check rotated session: %w", err)
		}
		if exists {
			return auth.ErrSessionRotated
		}
		return auth.ErrSessionNotFound
	}

	if err := insertSession(ctx, tx, successor); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

// Delete removes a session by its refresh token.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, refreshToken)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSession(ctx context.Context, q execer, session auth.Session) error {
	_, err := q.Exec(ctx, `
        INSERT INTO sessions (refresh_token, user_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (refresh_token)
        DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at,
            rotated_to = NULL, rotated_at = NULL
    `, session.RefreshToken, session.UserID, session.ExpiresAt.UTC())
	if err != nil {
		if errors.Is(classify(err), ErrNotFound) {
			return fmt.Errorf("save session for unknown user %s: %w", session.UserID, ErrNotFound)
		}
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)
