package auth

import "errors"

var (
	// ErrSessionNotFound indicates the provided refresh token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRotated is returned by a SessionStore when the refresh token
	// has already been replaced by a successor.
	ErrSessionRotated = errors.New("session already rotated")
	// ErrRefreshTokenReused indicates a replaced refresh token presented after
	// its reuse window.
	ErrRefreshTokenReused = errors.New("refresh token reused")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrInvalidAccessToken indicates the access token is malformed or not signed by us.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrAccessTokenExpired indicates a well-formed access token past its expiry.
	ErrAccessTokenExpired = errors.New("access token expired")
	// ErrNoSession is returned when a request carries no usable session.
	ErrNoSession = errors.New("no active session")
	// ErrMissingCode indicates the auth callback was reached without a code.
	ErrMissingCode = errors.New("authorization code missing")
	// ErrMissingVerifier indicates the PKCE verifier cookie is absent.
	ErrMissingVerifier = errors.New("pkce verifier missing")
	// ErrStateMismatch indicates the OAuth state parameter does not match its cookie.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrExchangeFailed wraps every failure of the code exchange call.
	ErrExchangeFailed = errors.New("code exchange failed")
)
