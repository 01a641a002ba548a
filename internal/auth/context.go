package auth

import (
	"context"

	"github.com/kanojo/studio/internal/models"
)

type userContextKey struct{}

// WithUser stores the authenticated user on the context.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user placed on the context by the route guard.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(models.User)
	return user, ok && user.ID != ""
}
