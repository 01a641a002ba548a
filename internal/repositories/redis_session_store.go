package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanojo/studio/internal/auth"
)

// RedisSessionStore keeps refresh tokens in Redis with a TTL matching the
// session expiry. Rotated tokens keep a pointer to their successor for the
// reuse window.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: "kanojo:session:",
		now:    time.Now,
	}
}

type redisSession struct {
	UserID    string     `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	RotatedTo string     `json:"rotated_to,omitempty"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
}

func (r redisSession) session(refreshToken string) auth.Session {
	session := auth.Session{RefreshToken: refreshToken, UserID: r.UserID, ExpiresAt: r.ExpiresAt.UTC()}
	if r.RotatedTo != "" && r.RotatedAt != nil {
		session.RotatedTo = r.RotatedTo
		session.RotatedAt = r.RotatedAt.UTC()
	}
	return session
}

func (s *RedisSessionStore) key(refreshToken string) string {
	return s.prefix + refreshToken
}

// Save stores the session until it expires. Sessions already past their
// expiry are removed instead.
func (s *RedisSessionStore) Save(ctx context.Context, session auth.Session) error {
	if session.RefreshToken == "" || session.UserID == "" {
		return fmt.Errorf("save session: missing refresh token or user id")
	}

	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.client.Del(ctx, s.key(session.RefreshToken)).Err()
	}

	data, err := json.Marshal(redisSession{UserID: session.UserID, ExpiresAt: session.ExpiresAt.UTC()})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(session.RefreshToken), data, ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Find loads a session by its refresh token.
func (s *RedisSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	val, err := s.client.Get(ctx, s.key(refreshToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("get session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(val, &stored); err != nil {
		return auth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}

	return stored.session(refreshToken), nil
}

// Rotate replaces refreshToken with successor under WATCH, so concurrent
// rotations of one token cannot both succeed. The replaced key keeps its
// pointer to the successor until retainUntil.
func (s *RedisSessionStore) Rotate(ctx context.Context, refreshToken string, successor auth.Session, at, retainUntil time.Time) error {
	key := s.key(refreshToken)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return auth.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		var stored redisSession
		if err := json.Unmarshal(val, &stored); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		if stored.RotatedTo != "" {
			return auth.ErrSessionRotated
		}

		rotatedAt := at.UTC()
		stored.RotatedTo = successor.RefreshToken
		stored.RotatedAt = &rotatedAt
		if retainUntil.Before(stored.ExpiresAt) {
			stored.ExpiresAt = retainUntil.UTC()
		}
		replaced, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		next, err := json.Marshal(redisSession{UserID: successor.UserID, ExpiresAt: successor.ExpiresAt.UTC()})
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		now := s.now()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl := stored.ExpiresAt.Sub(now); ttl > 0 {
				pipe.Set(ctx, key, replaced, ttl)
			} else {
				pipe.Del(ctx, key)
			}
			pipe.Set(ctx, s.key(successor.RefreshToken), next, successor.ExpiresAt.Sub(now))
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return auth.ErrSessionRotated
	case err != nil && !errors.Is(err, auth.ErrSessionNotFound) && !errors.Is(err, auth.ErrSessionRotated):
		return fmt.Errorf("rotate session: %w", err)
	}
	return err
}

// Delete removes a session by its refresh token.
func (s *RedisSessionStore) Delete(ctx context.Context, refreshToken string) error {
	removed, err := s.client.Del(ctx, s.key(refreshToken)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if removed == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

var _ auth.SessionStore = (*RedisSessionStore)(nil)
