package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

type contextKey string

const identityKey contextKey = "identity"

// Header names set by the upstream auth layer.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
	HeaderSessionID = "X-Session-Id"
)

// Identity is the caller as reported by the upstream auth layer.
type Identity struct {
	UserID    string
	Role      models.Role
	SessionID string
}

// Anonymous reports whether no user ID was supplied.
func (i Identity) Anonymous() bool { return i.UserID == "" }

// IdentityExtractor reads the caller's identity from the X-User-* headers.
// A missing or unrecognised role becomes anonymous.
func IdentityExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Role:      models.ParseRole(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
			SessionID: strings.TrimSpace(r.Header.Get(HeaderSessionID)),
		}
		if id.Anonymous() {
			id.Role = models.RoleAnonymous
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the caller's identity, or an anonymous one.
func GetIdentity(ctx context.Context) Identity {
	if v, ok := ctx.Value(identityKey).(Identity); ok {
		return v
	}
	return Identity{Role: models.RoleAnonymous}
}
