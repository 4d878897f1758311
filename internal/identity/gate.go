package identity

import (
	"context"
	"net/http"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
)

type contextKey string

// identityContextKey is the context key for the verified caller.
const identityContextKey contextKey = "identity"

// WithIdentity returns a context carrying the verified caller.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext extracts the verified caller from the context.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

// RequireRole returns middleware that pre-filters calls by role before they
// reach the core. The identity must already be resolved by the session
// middleware. An empty set allows any authenticated caller.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
				return
			}
			// Overseer passes every gate.
			if len(allowed) > 0 && !allowed[id.Role] && !id.IsOverseer() {
				api.WriteError(w, http.StatusForbidden, "not_authorized", "role not permitted for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
