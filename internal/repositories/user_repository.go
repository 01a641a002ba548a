package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kanojo/studio/internal/db"
	"github.com/kanojo/studio/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

const userColumns = `id, email, name, avatar, provider, subject, created_at, updated_at`

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if err != nil {
		if err = classify(err); isSentinel(err) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("select user by id: %w", err)
	}
	return user, nil
}

// UpsertIdentity returns the account linked to identity, creating it on the
// first sign-in. Profile fields are refreshed from the identity each time.
func (r *PostgresUserRepository) UpsertIdentity(ctx context.Context, identity models.Identity) (models.User, error) {
	if strings.TrimSpace(identity.Provider) == "" || strings.TrimSpace(identity.Subject) == "" {
		return models.User{}, fmt.Errorf("upsert identity: provider and subject are required")
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := r.now()
	row := conn.QueryRow(ctx, `
        INSERT INTO users (id, email, name, avatar, provider, subject, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
        ON CONFLICT (provider, subject)
        DO UPDATE SET
            email = EXCLUDED.email,
            name = COALESCE(EXCLUDED.name, users.name),
            avatar = COALESCE(EXCLUDED.avatar, users.avatar),
            updated_at = EXCLUDED.updated_at
        RETURNING `+userColumns,
		uuid.NewString(),
		strings.ToLower(strings.TrimSpace(identity.Email)),
		optionalString(identity.Name),
		optionalString(identity.Picture),
		identity.Provider,
		identity.Subject,
		now,
	)

	user, err := scanUser(row)
	if err != nil {
		if err = classify(err); isSentinel(err) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("upsert user identity: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Avatar, &user.Provider, &user.Subject, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
