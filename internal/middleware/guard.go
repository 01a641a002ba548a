package middleware

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/kanojo/studio/internal/auth"
	"github.com/kanojo/studio/internal/logging"
	"github.com/kanojo/studio/internal/models"
)

// Decision is the route guard's verdict for one request.
type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
	RedirectToStudio
)

func (d Decision) String() string {
	switch d {
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToStudio:
		return "redirect_studio"
	default:
		return "allow"
	}
}

// GuardConfig describes which paths need a session.
type GuardConfig struct {
	ProtectedPrefixes []string
	LoginPath         string
	StudioPath        string
	// Local disables the Secure attribute on forwarded cookies.
	Local bool
}

// DefaultGuardConfig protects /studio and /gallery.
func DefaultGuardConfig(local bool) GuardConfig {
	return GuardConfig{
		ProtectedPrefixes: []string{"/studio", "/gallery"},
		LoginPath:         "/login",
		StudioPath:        "/studio",
		Local:             local,
	}
}

// SessionChecker resolves the session behind a request. Refreshed cookies
// are emitted to sink.
type SessionChecker interface {
	GetUser(ctx context.Context, cookies []*http.Cookie, sink auth.CookieSink) (models.User, error)
}

// DecisionObserver is told about every decision the guard makes.
type DecisionObserver interface {
	ObserveGuardDecision(decision string)
}

// Decide classifies requestPath. Protected prefixes match the exact path or
// any path below it, so /studio-archive is not protected by /studio.
func Decide(requestPath string, hasSession bool, cfg GuardConfig) Decision {
	if !hasSession && isProtected(requestPath, cfg.ProtectedPrefixes) {
		return RedirectToLogin
	}
	if hasSession && requestPath == cfg.LoginPath {
		return RedirectToStudio
	}
	return Allow
}

func isProtected(requestPath string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/") {
			return true
		}
	}
	return false
}

var staticExtensions = map[string]struct{}{
	".svg":  {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
}

// IsStaticAsset reports whether the guard should skip requestPath entirely.
func IsStaticAsset(requestPath string) bool {
	if strings.HasPrefix(requestPath, "/_next/static") ||
		strings.HasPrefix(requestPath, "/_next/image") ||
		strings.HasPrefix(requestPath, "/favicon.ico") {
		return true
	}
	_, ok := staticExtensions[strings.ToLower(path.Ext(requestPath))]
	return ok
}

// RouteGuard checks the session on every non-static request, forwards any
// cookies the check produced and either redirects or passes the request on
// with the user attached to its context. A failing check counts as no session.
func RouteGuard(checker SessionChecker, cfg GuardConfig, observer DecisionObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsStaticAsset(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			logger := logging.FromContext(ctx)

			var (
				pending auth.PendingCookies
				user    models.User
				err     error
			)
			if checker != nil {
				user, err = checker.GetUser(ctx, r.Cookies(), &pending)
			} else {
				err = errors.New("session checker unavailable")
			}
			if err != nil && !errors.Is(err, auth.ErrNoSession) {
				logger.Warn("session check failed", "error", err)
			}
			hasSession := err == nil && user.ID != ""

			decision := Decide(r.URL.Path, hasSession, cfg)
			if observer != nil {
				observer.ObserveGuardDecision(decision.String())
			}

			pending.Apply(w, cfg.Local)

			switch decision {
			case RedirectToLogin:
				http.Redirect(w, r, cfg.LoginPath, http.StatusTemporaryRedirect)
				return
			case RedirectToStudio:
				http.Redirect(w, r, cfg.StudioPath, http.StatusTemporaryRedirect)
				return
			}

			if hasSession {
				ctx = auth.WithUser(ctx, user)
				ctx = logging.WithUserID(ctx, user.ID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
