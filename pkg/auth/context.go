package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// RoleUser is granted to every authenticated session.
const RoleUser = "ROLE_USER"

// contextKey is an unexported type for context keys defined in this
// package, preventing collisions with keys from other packages.
type contextKey int

const identityKey contextKey = iota

// IdentityContext is the authenticated caller of a request. It exists only
// for the lifetime of that request.
type IdentityContext struct {
	UserID string
	Roles  map[string]struct{}
}

// NewIdentityContext returns an identity holding the given roles.
func NewIdentityContext(userID string, roles ...string) *IdentityContext {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return &IdentityContext{UserID: userID, Roles: set}
}

// HasRole reports whether the identity holds role.
func (i *IdentityContext) HasRole(role string) bool {
	if i == nil {
		return false
	}
	_, ok := i.Roles[role]
	return ok
}

// ContextWithIdentity returns a copy of ctx carrying identity.
func ContextWithIdentity(ctx context.Context, identity *IdentityContext) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity stored by the authentication
// filter. The boolean is false for unauthenticated requests.
func IdentityFromContext(ctx context.Context) (*IdentityContext, bool) {
	identity, ok := ctx.Value(identityKey).(*IdentityContext)
	return identity, ok && identity != nil
}

// TraceIDFromContext returns the active trace id, or "" when there is no
// recording span.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// RequireAuthenticated rejects requests without an identity with 401.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			writeError(w, sserr.Unauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests without an identity with 401 and requests
// whose identity lacks role with 403.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, sserr.Unauthorized("authentication required"))
				return
			}
			if !identity.HasRole(role) {
				writeError(w, sserr.Forbidden("missing role "+role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError renders err as a JSON error body with its HTTP status.
func writeError(w http.ResponseWriter, err *sserr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorBody{Code: string(err.Code), Message: err.Message})
}
