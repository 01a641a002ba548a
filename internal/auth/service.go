package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/kanojo/studio/internal/models"
)

const loginCookieTTL = 5 * time.Minute

// UserStore resolves accounts for authenticated identities.
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	UpsertIdentity(ctx context.Context, identity models.Identity) (models.User, error)
}

// Service is the in-process auth service: it relays sessions through cookies,
// completes code exchanges and publishes auth state changes. Build one per
// process and pass it to the handlers that need it.
type Service struct {
	provider IdentityProvider
	users    UserStore
	sessions *Manager
	events   notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the identity provider, user store and session manager together.
func NewService(provider IdentityProvider, users UserStore, sessions *Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		users:    users,
		sessions: sessions,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnAuthStateChange registers fn for every subsequent state change and
// returns a function that removes it.
func (s *Service) OnAuthStateChange(fn func(StateChange)) (unsubscribe func()) {
	return s.events.subscribe(fn)
}

// GetUser resolves the user behind the request cookies. An expired or missing
// access token is replaced using the refresh token; the rotated cookies are
// emitted to sink. ErrNoSession is returned when neither token is usable.
func (s *Service) GetUser(ctx context.Context, cookies []*http.Cookie, sink CookieSink) (models.User, error) {
	if access := cookieValue(cookies, AccessTokenCookie); access != "" {
		userID, err := s.sessions.Authenticate(access)
		if err == nil {
			return s.lookupUser(ctx, userID)
		}
		if !errors.Is(err, ErrAccessTokenExpired) && !errors.Is(err, ErrInvalidAccessToken) {
			return models.User{}, err
		}
	}

	refresh := cookieValue(cookies, RefreshTokenCookie)
	if refresh == "" {
		return models.User{}, ErrNoSession
	}

	tokens, err := s.sessions.Refresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenReused) {
			// The browser may already hold the successor; clearing here
			// could overwrite it.
			return models.User{}, ErrNoSession
		}
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrRefreshTokenExpired) {
			emit(sink, expiredCookie(AccessTokenCookie), expiredCookie(RefreshTokenCookie))
			return models.User{}, ErrNoSession
		}
		return models.User{}, fmt.Errorf("refresh session: %w", err)
	}

	emit(sink, sessionCookies(tokens)...)
	s.publish(EventTokenRefreshed, tokens.UserID)

	return s.lookupUser(ctx, tokens.UserID)
}

// BeginLogin prepares the state and PKCE verifier cookies and returns the
// identity provider URL the browser should visit.
func (s *Service) BeginLogin(sink CookieSink) (string, error) {
	if s.provider == nil {
		return "", errors.New("identity provider unavailable")
	}

	state, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	maxAge := int(loginCookieTTL.Seconds())
	emit(sink,
		Cookie{Name: StateCookie, Value: state, Options: CookieOptions{MaxAge: maxAge, HttpOnly: boolPtr(true)}},
		Cookie{Name: VerifierCookie, Value: verifier, Options: CookieOptions{MaxAge: maxAge, HttpOnly: boolPtr(true)}},
	)

	return s.provider.AuthCodeURL(state, oauth2.S256ChallengeFromVerifier(verifier)), nil
}

// VerifyState checks the state echoed by the identity provider against the
// state cookie set by BeginLogin.
func VerifyState(state string, cookies []*http.Cookie) error {
	expected := cookieValue(cookies, StateCookie)
	if state == "" || expected == "" || state != expected {
		return ErrStateMismatch
	}
	return nil
}

// ExchangeCodeForSession redeems code with the identity provider, resolves
// the account and emits the new session cookies to sink.
func (s *Service) ExchangeCodeForSession(ctx context.Context, code string, cookies []*http.Cookie, sink CookieSink) error {
	if code == "" {
		return ErrMissingCode
	}
	if s.provider == nil {
		return errors.New("identity provider unavailable")
	}

	verifier := cookieValue(cookies, VerifierCookie)
	if verifier == "" {
		return ErrMissingVerifier
	}

	identity, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return err
	}

	user, err := s.users.UpsertIdentity(ctx, identity)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	tokens, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("issue session: %w", err)
	}

	batch := append(sessionCookies(tokens), expiredCookie(VerifierCookie), expiredCookie(StateCookie))
	emit(sink, batch...)
	s.publish(EventSignedIn, user.ID)

	return nil
}

// SignOut revokes the refresh token carried by the request and emits
// cookies that clear the session on the client.
func (s *Service) SignOut(ctx context.Context, cookies []*http.Cookie, sink CookieSink) error {
	var userID string
	if access := cookieValue(cookies, AccessTokenCookie); access != "" {
		userID, _ = s.sessions.Authenticate(access)
	}

	s.sessions.Revoke(ctx, cookieValue(cookies, RefreshTokenCookie))
	emit(sink, expiredCookie(AccessTokenCookie), expiredCookie(RefreshTokenCookie))
	s.publish(EventSignedOut, userID)
	return nil
}

func (s *Service) lookupUser(ctx context.Context, userID string) (models.User, error) {
	if s.users == nil {
		return models.User{}, errors.New("user store unavailable")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return user, nil
}

func (s *Service) publish(event Event, userID string) {
	s.logger.Debug("auth state changed", "event", string(event), "userId", userID)
	s.events.publish(StateChange{Event: event, UserID: userID, At: s.now()})
}

func sessionCookies(tokens models.SessionTokens) []Cookie {
	return []Cookie{
		{
			Name:    AccessTokenCookie,
			Value:   tokens.AccessToken,
			Options: CookieOptions{Expires: tokens.AccessExpiresAt, HttpOnly: boolPtr(true)},
		},
		{
			Name:    RefreshTokenCookie,
			Value:   tokens.RefreshToken,
			Options: CookieOptions{Expires: tokens.RefreshExpiresAt, HttpOnly: boolPtr(true)},
		},
	}
}

func emit(sink CookieSink, cookies ...Cookie) {
	if sink == nil || len(cookies) == 0 {
		return
	}
	sink.SetAll(cookies)
}
