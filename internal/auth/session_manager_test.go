package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testSigningKey = []byte("test-signing-key")

func TestManagerIssueAndRefresh(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, testSigningKey, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens: %+v", tokens)
	}
	if tokens.UserID != "user-1" {
		t.Fatalf("expected tokens for user-1 got %q", tokens.UserID)
	}

	refreshed, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected new refresh token")
	}
	if !store.Has(refreshed.RefreshToken) {
		t.Fatal("new token should be stored")
	}
	replaced, err := store.Find(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("find replaced: %v", err)
	}
	if replaced.RotatedTo != refreshed.RefreshToken {
		t.Fatalf("expected replaced token to point at successor, got %+v", replaced)
	}
}

func TestManagerRefreshReuseWithinGrace(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, testSigningKey, store)
	manager.WithNowFunc(func() time.Time { return now })
	manager.WithReuseGrace(5 * time.Second)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	first, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	now = now.Add(2 * time.Second)
	second, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if second.RefreshToken != first.RefreshToken {
		t.Fatalf("expected the same successor, got %q and %q", first.RefreshToken, second.RefreshToken)
	}
	if !second.RefreshExpiresAt.Equal(first.RefreshExpiresAt) {
		t.Fatalf("expected successor expiry to be kept, got %v want %v", second.RefreshExpiresAt, first.RefreshExpiresAt)
	}
	if userID, err := manager.Authenticate(second.AccessToken); err != nil || userID != "user-1" {
		t.Fatalf("expected usable access token, got %q %v", userID, err)
	}

	now = now.Add(10 * time.Second)
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenReused) {
		t.Fatalf("expected ErrRefreshTokenReused after grace got %v", err)
	}

	if _, err := manager.Refresh(context.Background(), first.RefreshToken); err != nil {
		t.Fatalf("successor should still refresh: %v", err)
	}
}

func TestManagerRefreshWithoutGraceRejectsReuse(t *testing.T) {
	manager := NewManager(time.Minute, time.Hour, testSigningKey, NewInMemorySessionStore())
	manager.WithReuseGrace(0)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenReused) {
		t.Fatalf("expected ErrRefreshTokenReused got %v", err)
	}
}

type rotationRaceStore struct {
	*InMemorySessionStore
	winner Session
}

// Rotate lets a competing rotation land first.
func (s *rotationRaceStore) Rotate(ctx context.Context, refreshToken string, _ Session, at, retainUntil time.Time) error {
	if err := s.InMemorySessionStore.Rotate(ctx, refreshToken, s.winner, at, retainUntil); err != nil {
		return err
	}
	return ErrSessionRotated
}

func TestManagerRefreshFollowsConcurrentRotation(t *testing.T) {
	store := &rotationRaceStore{InMemorySessionStore: NewInMemorySessionStore()}
	manager := NewManager(time.Minute, time.Hour, testSigningKey, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	store.winner = Session{RefreshToken: "winner", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}

	refreshed, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken != "winner" {
		t.Fatalf("expected winning successor, got %q", refreshed.RefreshToken)
	}
}

func TestManagerIssueValidation(t *testing.T) {
	manager := NewManager(time.Minute, time.Hour, testSigningKey, NewInMemorySessionStore())
	if _, err := manager.Issue(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestManagerRefreshFailures(t *testing.T) {
	manager := NewManager(time.Minute, time.Millisecond, testSigningKey, NewInMemorySessionStore())

	if _, err := manager.Refresh(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found got %v", err)
	}

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected refresh expired got %v", err)
	}

	tokens, err = manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	manager.Revoke(context.Background(), tokens.RefreshToken)
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found after revoke got %v", err)
	}
}

func TestManagerAuthenticate(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager := NewManager(time.Minute, time.Hour, testSigningKey, NewInMemorySessionStore())
	manager.WithNowFunc(func() time.Time { return now })

	tokens, err := manager.Issue(context.Background(), "user-7")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, err := manager.Authenticate(tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "user-7" {
		t.Fatalf("expected user-7 got %q", userID)
	}

	other := NewManager(time.Minute, time.Hour, []byte("another-key"), NewInMemorySessionStore())
	other.WithNowFunc(func() time.Time { return now })
	if _, err := other.Authenticate(tokens.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected invalid token for foreign key got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := manager.Authenticate(tokens.AccessToken); !errors.Is(err, ErrAccessTokenExpired) {
		t.Fatalf("expected expired access token got %v", err)
	}

	if _, err := manager.Authenticate("not-a-jwt"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected invalid token for garbage got %v", err)
	}
}
