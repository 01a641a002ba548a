package handlers

import (
	"context"
	"net/http"

	"github.com/kanojo/studio/internal/auth"
	"github.com/kanojo/studio/internal/generations"
	"github.com/kanojo/studio/internal/models"
)

// AuthService starts and ends browser sessions.
type AuthService interface {
	BeginLogin(sink auth.CookieSink) (string, error)
	SignOut(ctx context.Context, cookies []*http.Cookie, sink auth.CookieSink) error
}

// SessionExchanger turns an authorization code into session cookies.
type SessionExchanger interface {
	Exchange(ctx context.Context, code string, requestCookies []*http.Cookie) (auth.ExchangeResult, error)
}

// ExchangeObserver records code exchange outcomes.
type ExchangeObserver interface {
	ObserveCodeExchange(outcome string, timedOut bool)
}

// GenerationService runs a prompt through the generation pipeline.
type GenerationService interface {
	Generate(ctx context.Context, userID string, req generations.Request) (generations.Result, error)
}

// GenerationStore captures the gallery operations on generation records.
type GenerationStore interface {
	ListForUser(ctx context.Context, userID string, offset, limit int) ([]models.Generation, error)
	Delete(ctx context.Context, userID, id string) (models.Generation, error)
}

// MomentStore captures the gallery operations on moments.
type MomentStore interface {
	ListPage(ctx context.Context, userID string, offset, limit int) ([]models.Moment, error)
	Delete(ctx context.Context, userID, id string) error
}

// ObjectRemover deletes stored images.
type ObjectRemover interface {
	Delete(ctx context.Context, key string) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
