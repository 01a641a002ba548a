package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kanojo/studio/internal/auth"
	"github.com/kanojo/studio/internal/logging"
)

const (
	defaultNextPath = "/studio"
	loginPath       = "/login"
	authErrorPath   = "/login?error=auth_error"
	nextCookie      = "kanojo-auth-next"
	nextCookieAge   = 300
)

// AuthHandler implements the browser sign-in flow.
type AuthHandler struct {
	Auth      AuthService
	Exchanger SessionExchanger
	Metrics   ExchangeObserver
	// Local marks local development: cookies drop Secure and redirects
	// ignore X-Forwarded-Host.
	Local bool
}

// Login handles GET /auth/login by sending the browser to the identity provider.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil {
		logger.Error("auth service unavailable")
		http.Redirect(w, r, requestOrigin(r)+authErrorPath, http.StatusTemporaryRedirect)
		return
	}

	var pending auth.PendingCookies
	authURL, err := h.Auth.BeginLogin(&pending)
	if err != nil {
		logger.Error("begin login failed", "error", err)
		http.Redirect(w, r, requestOrigin(r)+authErrorPath, http.StatusTemporaryRedirect)
		return
	}

	if next := r.URL.Query().Get("next"); next != "" {
		pending.SetAll([]auth.Cookie{{
			Name:    nextCookie,
			Value:   sanitizeNext(next),
			Options: auth.CookieOptions{MaxAge: nextCookieAge},
		}})
	}

	pending.Apply(w, h.Local)
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback handles GET /auth/callback. It exchanges the code for a session
// and redirects to the requested page with every session cookie attached.
func (h AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)
	query := r.URL.Query()

	code := query.Get("code")
	if code == "" {
		logger.Warn("auth callback without code", "error", query.Get("error"))
		h.observe("missing_code", false)
		h.fail(w, r)
		return
	}

	if err := auth.VerifyState(query.Get("state"), r.Cookies()); err != nil {
		logger.Warn("auth callback state mismatch", "error", err)
		h.observe("state_mismatch", false)
		h.fail(w, r)
		return
	}

	if h.Exchanger == nil {
		logger.Error("session exchanger unavailable")
		h.observe("failed", false)
		h.fail(w, r)
		return
	}

	result, err := h.Exchanger.Exchange(ctx, code, r.Cookies())
	if err != nil {
		logger.Error("session exchange failed", "error", err, "missingCode", errors.Is(err, auth.ErrMissingCode))
		h.observe("failed", false)
		h.fail(w, r)
		return
	}
	if result.TimedOut {
		logger.Warn("session cookies not emitted before deadline", "collected", len(result.Cookies))
	}
	h.observe("succeeded", result.TimedOut)

	next := query.Get("next")
	if next == "" {
		if c, err := r.Cookie(nextCookie); err == nil {
			next = c.Value
		}
	}

	cookies := append(result.Cookies, auth.Cookie{Name: nextCookie, Options: auth.CookieOptions{MaxAge: -1}})
	auth.ApplyCookies(w, cookies, h.Local)
	http.Redirect(w, r, h.targetURL(r, sanitizeNext(next)), http.StatusTemporaryRedirect)
}

// SignOut handles POST /auth/signout.
func (h AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var pending auth.PendingCookies
	if h.Auth != nil {
		if err := h.Auth.SignOut(ctx, r.Cookies(), &pending); err != nil {
			logger.Error("sign out failed", "error", err)
		}
	}

	pending.Apply(w, h.Local)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h AuthHandler) fail(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, requestOrigin(r)+authErrorPath, http.StatusTemporaryRedirect)
}

func (h AuthHandler) observe(outcome string, timedOut bool) {
	if h.Metrics != nil {
		h.Metrics.ObserveCodeExchange(outcome, timedOut)
	}
}

// targetURL resolves where a successful sign-in lands. Behind a proxy the
// forwarded host is used with https, except in local development.
func (h AuthHandler) targetURL(r *http.Request, next string) string {
	if !h.Local {
		forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Host"), ",")
		if forwarded = strings.TrimSpace(forwarded); forwarded != "" {
			return "https://" + forwarded + next
		}
	}
	return requestOrigin(r) + next
}

// sanitizeNext keeps redirects on this site: anything that is not an
// absolute path falls back to the studio.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return defaultNextPath
	}
	return next
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
