package authz

import (
	"context"
	"net/http"

	"github.com/receiptly/team-api/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller as carried on the request context.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	IssuedAt    int64
}

// WithIdentity stores the caller identity on the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromRequest extracts the caller identity placed by the JWT
// middleware.
func IdentityFromRequest(r *http.Request) (Identity, bool) {
	identity, ok := r.Context().Value(identityKey).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}

// User converts the identity into the model consumed by the access layer.
func (i Identity) User() models.User {
	return models.User{
		ID:          i.UserID,
		Email:       i.Email,
		DisplayName: i.DisplayName,
	}
}
