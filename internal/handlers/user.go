package handlers

import (
	"net/http"
	"time"

	"github.com/kanojo/studio/internal/auth"
	"github.com/kanojo/studio/internal/casing"
)

// UserHandler serves the signed-in user's profile.
type UserHandler struct{}

// Get handles GET /api/user. Keys are camelCased for the frontend.
func (UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		respondUnauthorized(ctx, w)
		return
	}

	row := map[string]any{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"avatar":     user.Avatar,
		"provider":   user.Provider,
		"created_at": user.CreatedAt.Format(time.RFC3339),
		"updated_at": user.UpdatedAt.Format(time.RFC3339),
	}

	respondJSON(ctx, w, http.StatusOK, casing.CamelizeKeys(row))
}
