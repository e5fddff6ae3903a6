package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

func (s *Server) routes(mc MetricsConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), s.authenticate())

	user := r.Group("/api/user")
	user.POST("/login", s.login)
	user.GET("/identity", requireAuthenticated(), s.identity)
	user.POST("/logout", s.logout)

	token := r.Group("/api/token")
	token.POST("/create/:userId", requireRole(auth.RoleUser), s.createToken)
	token.POST("/activate/:token", s.activateToken)
	token.GET("/validate/:token", s.validateToken)

	r.GET("/health", s.health)

	if mc.Enabled {
		path := mc.Path
		if path == "" {
			path = DefaultMetricsPath
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{
			Registry: s.deps.Registry,
		})))
	}
	return r
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError renders err with its HTTP status. Server-side failures get
// a generic message; the detail goes to the log.
func respondError(c *gin.Context, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()
	msg := e.Message
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "server: request failed",
			"route", c.FullPath(),
			"code", e.Code,
			"error", err,
		)
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, errorBody{Code: string(e.Code), Message: msg})
}
