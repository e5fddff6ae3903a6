package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
)

// fromMiddleware adapts net/http middleware to gin. When the middleware
// answers the request itself instead of calling next, the gin chain is
// aborted.
func fromMiddleware(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})
		mw(next).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// authenticate runs the session filter on every request.
func (s *Server) authenticate() gin.HandlerFunc {
	filter := auth.NewAuthenticationFilter(s.deps.Sessions,
		auth.WithOutcomeObserver(s.metrics.observeFilter))
	return fromMiddleware(filter.Middleware)
}

// requireAuthenticated rejects anonymous requests with 401.
func requireAuthenticated() gin.HandlerFunc {
	return fromMiddleware(auth.RequireAuthenticated)
}

// requireRole rejects anonymous requests with 401 and identities without
// role with 403.
func requireRole(role string) gin.HandlerFunc {
	return fromMiddleware(auth.RequireRole(role))
}

// accessLog logs each request and records its count and latency. Routes
// are labelled by template so path parameters do not reach the metrics.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		s.metrics.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.duration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "server: request completed",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"client_ip", c.ClientIP(),
		)
	}
}
