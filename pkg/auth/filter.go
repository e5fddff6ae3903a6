package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// DefaultLoginPath is the path the filter never authenticates.
const DefaultLoginPath = "/api/user/login"

// Outcome is the filter's classification of a request.
type Outcome string

const (
	OutcomeSkipped       Outcome = "skipped"
	OutcomeAnonymous     Outcome = "anonymous"
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeExpired       Outcome = "expired"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeError         Outcome = "error"
)

// FilterOption configures an [AuthenticationFilter].
type FilterOption func(*AuthenticationFilter)

// WithSkipPaths replaces the path suffixes that bypass authentication.
func WithSkipPaths(suffixes ...string) FilterOption {
	return func(f *AuthenticationFilter) {
		f.skip = append([]string(nil), suffixes...)
	}
}

// WithOutcomeObserver registers a callback run once per request with the
// filter's outcome. It is used for metrics.
func WithOutcomeObserver(observe func(Outcome)) FilterOption {
	return func(f *AuthenticationFilter) {
		if observe != nil {
			f.observe = observe
		}
	}
}

// AuthenticationFilter establishes the caller's identity from the session
// cookie. It never rejects a request for lacking or carrying a bad session;
// handlers that need an identity use [RequireAuthenticated].
type AuthenticationFilter struct {
	validator SessionTokenValidator
	skip      []string
	observe   func(Outcome)
}

// NewAuthenticationFilter returns a filter validating sessions with v.
func NewAuthenticationFilter(v SessionTokenValidator, opts ...FilterOption) *AuthenticationFilter {
	f := &AuthenticationFilter{
		validator: v,
		skip:      []string{DefaultLoginPath},
		observe:   func(Outcome) {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Skips reports whether path bypasses the filter.
func (f *AuthenticationFilter) Skips(path string) bool {
	for _, suffix := range f.skip {
		if suffix != "" && strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Authenticate classifies a session token. It returns the identity for a
// valid token and a nil identity for an empty, expired or invalid one. The
// error is non-nil only when validation itself failed.
func (f *AuthenticationFilter) Authenticate(ctx context.Context, token string) (*IdentityContext, Outcome, error) {
	if token == "" {
		return nil, OutcomeAnonymous, nil
	}

	userID, err := f.validator.Validate(ctx, token)
	switch {
	case err == nil:
		return NewIdentityContext(userID, RoleUser), OutcomeAuthenticated, nil
	case sserr.IsSessionExpired(err):
		slog.DebugContext(ctx, "auth: session expired", "token_prefix", TokenPrefix(token))
		return nil, OutcomeExpired, nil
	case sserr.IsSessionInvalid(err):
		slog.WarnContext(ctx, "auth: invalid session token",
			"token_prefix", TokenPrefix(token),
			"error", err,
		)
		return nil, OutcomeInvalid, nil
	default:
		slog.ErrorContext(ctx, "auth: session validation failed",
			"token_prefix", TokenPrefix(token),
			"error", err,
		)
		return nil, OutcomeError, err
	}
}

// Middleware wraps next with session authentication.
func (f *AuthenticationFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.Skips(r.URL.Path) {
			f.observe(OutcomeSkipped)
			next.ServeHTTP(w, r)
			return
		}

		identity, outcome, err := f.Authenticate(r.Context(), SessionTokenFromRequest(r))
		f.observe(outcome)
		if err != nil {
			writeError(w, sserr.Internal("session validation failed"))
			return
		}
		if identity != nil {
			r = r.WithContext(ContextWithIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}
