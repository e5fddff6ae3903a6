package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// clearCookiesHeader asks login to drop any previous session cookie first.
const clearCookiesHeader = "X-Clear-Cookies"

type loginRequest struct {
	Address string `json:"address"`
}

// login exchanges a provider token and wallet address for a session
// cookie. A bad body is 400 and any verification failure is 401, both with
// an empty body.
func (s *Server) login(c *gin.Context) {
	ctx := c.Request.Context()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Address) == "" {
		s.metrics.login(loginBadRequest)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	wallet := strings.TrimSpace(req.Address)

	token := auth.ExtractBearerToken(c.Request)
	if token == "" {
		s.metrics.login(loginMissingToken)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := s.deps.Verifier.Verify(ctx, token)
	if err != nil {
		s.metrics.login(verificationResult(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if strings.TrimSpace(claims.Email) == "" {
		slog.WarnContext(ctx, "server: provider token carries no email",
			"verifier", claims.Verifier,
			"token_prefix", auth.TokenPrefix(token),
		)
		s.metrics.login(loginTokenInvalid)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	identity, err := s.deps.Identities.Resolve(ctx, claims.Email, wallet)
	if err != nil {
		s.metrics.login(loginError)
		slog.ErrorContext(ctx, "server: identity resolution failed",
			"code", sserr.GetCode(err),
			"error", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Code:    string(sserr.CodeInternal),
			Message: "failed to resolve user",
		})
		return
	}

	session, sc, err := s.deps.Issuer.Issue(identity.UserID)
	if err != nil {
		s.metrics.login(loginError)
		respondError(c, sserr.Wrap(err, sserr.CodeInternal, "server: failed to issue session"))
		return
	}

	// The cleared cookie goes first so the browser ends up keeping the new one.
	if c.GetHeader(clearCookiesHeader) == "true" {
		http.SetCookie(c.Writer, auth.ClearedSessionCookie(s.deps.Cookie))
	}
	http.SetCookie(c.Writer, auth.NewSessionCookie(s.deps.Cookie, session, sc.ExpiresAt.Sub(sc.IssuedAt)))

	s.metrics.login(loginSuccess)
	slog.InfoContext(ctx, "server: login succeeded",
		"user_id", identity.UserID,
		"client_ip", c.ClientIP(),
	)
	c.JSON(http.StatusOK, identity)
}

func verificationResult(err error) string {
	switch {
	case sserr.IsTokenExpired(err):
		return loginTokenExpired
	case sserr.HasCode(err, sserr.CodeKeySetUnavailable):
		return loginKeySetUnavailable
	case sserr.IsAuthentication(err):
		return loginTokenInvalid
	default:
		return loginError
	}
}

// identity returns the session user's identity. A user deleted since the
// session was issued is 404.
func (s *Server) identity(c *gin.Context) {
	caller, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		respondError(c, sserr.Unauthorized("authentication required"))
		return
	}

	identity, err := s.deps.Identities.Lookup(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// logout expires the session cookie. Session tokens are stateless, so
// nothing is revoked server-side.
func (s *Server) logout(c *gin.Context) {
	http.SetCookie(c.Writer, auth.ClearedSessionCookie(s.deps.Cookie))
	c.Status(http.StatusOK)
}
