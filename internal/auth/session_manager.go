package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kanojo/studio/internal/models"
)

const tokenIssuer = "kanojo-studio"

// DefaultReuseGrace is how long a replaced refresh token keeps resolving to
// its successor. Parallel requests sent before the browser stored the rotated
// cookie would otherwise end the session.
const DefaultReuseGrace = 10 * time.Second

// SessionStore persists issued refresh tokens so they can survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
	// Rotate stores successor and marks the session behind refreshToken as
	// replaced by it at the given time, keeping the replaced record no longer
	// than retainUntil. It fails with ErrSessionNotFound for an unknown token
	// and ErrSessionRotated when the token was already replaced.
	Rotate(ctx context.Context, refreshToken string, successor Session, at, retainUntil time.Time) error
}

// Session represents a refresh token issued to a user. RotatedTo and
// RotatedAt are set once the token has been exchanged for a successor.
type Session struct {
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
	RotatedTo    string
	RotatedAt    time.Time
}

// Manager issues signed access tokens and rotating refresh tokens.
// Access tokens are stateless HS256 JWTs; refresh tokens live in the store.
type Manager struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
	reuseGrace time.Duration
	signingKey []byte

	store SessionStore
	now   func() time.Time
}

// NewManager constructs a Manager that issues access and refresh tokens with the provided TTLs.
func NewManager(accessTTL, refreshTTL time.Duration, signingKey []byte, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	if len(signingKey) == 0 {
		panic("auth: signing key must not be empty")
	}
	return &Manager{
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		reuseGrace: DefaultReuseGrace,
		signingKey: signingKey,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithNowFunc allows tests to override the time source.
func (m *Manager) WithNowFunc(now func() time.Time) {
	m.now = now
}

// WithReuseGrace sets how long a replaced refresh token resolves to its
// successor. Zero disables reuse.
func (m *Manager) WithReuseGrace(grace time.Duration) {
	if grace < 0 {
		grace = 0
	}
	m.reuseGrace = grace
}

// Issue creates a new pair of access and refresh tokens for the provided user identifier.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	tokens, err := m.newTokens(userID, m.now())
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := m.store.Save(ctx, Session{
		RefreshToken: tokens.RefreshToken,
		UserID:       userID,
		ExpiresAt:    tokens.RefreshExpiresAt,
	}); err != nil {
		return models.SessionTokens{}, err
	}

	return tokens, nil
}

func (m *Manager) newTokens(userID string, now time.Time) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	accessToken, accessExpires, err := m.signAccess(userID, now)
	if err != nil {
		return models.SessionTokens{}, err
	}

	refreshToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	return models.SessionTokens{
		UserID:           userID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpires,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(m.refreshTTL),
	}, nil
}

func (m *Manager) signAccess(userID string, now time.Time) (string, time.Time, error) {
	expires := now.Add(m.accessTTL)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString(m.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, expires, nil
}

// Authenticate verifies an access token and returns the user it was issued to.
func (m *Manager) Authenticate(accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrInvalidAccessToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(*jwt.Token) (any, error) {
		return m.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrAccessTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}

	if claims.Subject == "" {
		return "", ErrInvalidAccessToken
	}
	return claims.Subject, nil
}

// Refresh exchanges a refresh token for a new session token pair. The old
// refresh token is replaced; presenting it again within the reuse grace
// returns the same successor with a fresh access token, and afterwards fails
// with ErrRefreshTokenReused.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		return models.SessionTokens{}, err
	}

	now := m.now()
	if session.RotatedTo != "" {
		return m.reuse(ctx, session, now)
	}

	if now.After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, refreshToken)
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}

	tokens, err := m.newTokens(session.UserID, now)
	if err != nil {
		return models.SessionTokens{}, err
	}

	err = m.store.Rotate(ctx, refreshToken, Session{
		RefreshToken: tokens.RefreshToken,
		UserID:       session.UserID,
		ExpiresAt:    tokens.RefreshExpiresAt,
	}, now, now.Add(m.reuseGrace))
	if errors.Is(err, ErrSessionRotated) {
		// A concurrent refresh won; hand out its successor.
		if session, err = m.store.Find(ctx, refreshToken); err != nil {
			return models.SessionTokens{}, err
		}
		return m.reuse(ctx, session, now)
	}
	if err != nil {
		return models.SessionTokens{}, err
	}

	return tokens, nil
}

func (m *Manager) reuse(ctx context.Context, replaced Session, now time.Time) (models.SessionTokens, error) {
	if replaced.RotatedTo == "" || m.reuseGrace <= 0 || now.Sub(replaced.RotatedAt) > m.reuseGrace {
		return models.SessionTokens{}, ErrRefreshTokenReused
	}

	successor, err := m.store.Find(ctx, replaced.RotatedTo)
	if errors.Is(err, ErrSessionNotFound) {
		return models.SessionTokens{}, ErrRefreshTokenReused
	}
	if err != nil {
		return models.SessionTokens{}, err
	}
	if successor.RotatedTo != "" || now.After(successor.ExpiresAt) {
		return models.SessionTokens{}, ErrRefreshTokenReused
	}

	accessToken, accessExpires, err := m.signAccess(successor.UserID, now)
	if err != nil {
		return models.SessionTokens{}, err
	}

	return models.SessionTokens{
		UserID:           successor.UserID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpires,
		RefreshToken:     successor.RefreshToken,
		RefreshExpiresAt: successor.ExpiresAt,
	}, nil
}

// Revoke removes the provided refresh token from the active session store.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	_ = m.store.Delete(ctx, refreshToken)
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
