package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kanojo/studio/internal/middleware"
)

// Rate limit scopes.
const (
	ScopeLogin    = "login"
	ScopeCallback = "callback"
	ScopeGenerate = "generate"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Database: deps.Database}
	authHandler := AuthHandler{Auth: deps.Auth, Exchanger: deps.Exchanger, Metrics: deps.ExchangeMetrics, Local: deps.Local}
	generate := GenerateHandler{Generations: deps.Generator}
	user := UserHandler{}
	gallery := GenerationsHandler{Generations: deps.Generations, Objects: deps.Objects}
	moments := MomentsHandler{Moments: deps.Moments}

	limit := func(scope string, h http.HandlerFunc) http.Handler {
		return middleware.Limit(deps.RateLimiter, scope, deps.TrustedProxies)(h)
	}

	mux.HandleFunc("/healthz", health.Handle)
	mux.Handle("/auth/login", limit(ScopeLogin, authHandler.Login))
	mux.Handle("/auth/callback", limit(ScopeCallback, authHandler.Callback))
	mux.HandleFunc("/auth/signout", authHandler.SignOut)
	mux.Handle("/api/generate", limit(ScopeGenerate, generate.Create))
	mux.HandleFunc("/api/user", user.Get)
	mux.HandleFunc("/api/generations", gallery.List)
	mux.HandleFunc("/api/generations/{id}", gallery.Delete)
	mux.HandleFunc("/api/moments", moments.List)
	mux.HandleFunc("/api/moments/{id}", moments.Delete)

	if deps.MetricsHandler != nil {
		mux.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.StaticDir != "" {
		mux.Handle("/", staticHandler(deps.StaticDir))
	}
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Auth            AuthService
	Exchanger       SessionExchanger
	ExchangeMetrics ExchangeObserver
	Generator       GenerationService
	Generations     GenerationStore
	Moments         MomentStore
	Objects         ObjectRemover
	Database        Pinger
	RateLimiter     middleware.RateLimiter
	TrustedProxies  middleware.TrustedProxies
	MetricsHandler  http.Handler
	StaticDir       string
	Local           bool
}

// staticHandler serves the exported frontend. Extensionless paths fall back
// to the matching .html page, so /studio serves studio.html.
func staticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + r.URL.Path)
		if clean != "/" && path.Ext(clean) == "" {
			page := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))+".html")
			if info, err := os.Stat(page); err == nil && !info.IsDir() {
				http.ServeFile(w, r, page)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}
