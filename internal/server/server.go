// Package server is the HTTP surface of the identity service.
//
// Routes:
//
//	POST /api/user/login              exchange a provider token for a session cookie
//	GET  /api/user/identity           identity of the session's user
//	POST /api/user/logout             clear the session cookie
//	POST /api/token/create/:userId    issue an activation token (authenticated)
//	POST /api/token/activate/:token   consume an activation token
//	GET  /api/token/validate/:token   check an activation token
//	GET  /health                      liveness and dependency checks
//	GET  /metrics                     Prometheus exposition
//
// Every request passes through the session [auth.AuthenticationFilter]; only
// routes that need an identity reject anonymous callers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/StricklySoft/stricklysoft-identity/internal/users"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Defaults for [Config].
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMetricsPath     = "/metrics"
)

// Config configures the HTTP listener.
type Config struct {
	Addr            string        `json:"addr" yaml:"addr" env:"IDENTITY_HTTP_ADDR"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" env:"IDENTITY_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" env:"IDENTITY_HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"IDENTITY_HTTP_SHUTDOWN_TIMEOUT"`
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            DefaultAddr,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Validate rejects an empty address and negative timeouts.
func (c Config) Validate() error {
	if c.Addr == "" {
		return sserr.New(sserr.CodeValidationRequired, "server: http addr is required")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return sserr.New(sserr.CodeValidation, "server: http timeouts must not be negative")
	}
	return nil
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"IDENTITY_METRICS_ENABLED"`
	Path    string `json:"path" yaml:"path" env:"IDENTITY_METRICS_PATH"`
}

// DefaultMetricsConfig serves metrics at [DefaultMetricsPath].
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true, Path: DefaultMetricsPath}
}

// ExternalVerifier verifies provider tokens. Implemented by
// [auth.ExternalTokenVerifier].
type ExternalVerifier interface {
	Verify(ctx context.Context, token string) (*auth.ExternalTokenClaims, error)
}

// SessionIssuer mints session tokens. Implemented by [auth.SessionIssuer].
type SessionIssuer interface {
	Issue(userID string) (string, auth.SessionClaims, error)
}

// IdentityResolver maps verified emails and session subjects to users.
// Implemented by [users.Resolver].
type IdentityResolver interface {
	Resolve(ctx context.Context, email, wallet string) (*users.Identity, error)
	Lookup(ctx context.Context, userID string) (*users.Identity, error)
}

// ActivationTokens manages activation tokens. Implemented by
// activation.Service.
type ActivationTokens interface {
	Create(ctx context.Context, userID string) (string, error)
	Validate(ctx context.Context, token string) (bool, error)
	Activate(ctx context.Context, token string) (bool, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of a [Server]. All fields except Checks and
// Registry are required.
type Deps struct {
	Verifier   ExternalVerifier
	Issuer     SessionIssuer
	Sessions   auth.SessionTokenValidator
	Identities IdentityResolver
	Tokens     ActivationTokens
	Cookie     auth.CookieConfig

	// Checks are run by /health, keyed by dependency name.
	Checks map[string]HealthCheck

	// Registry receives the server's collectors. Nil creates a private
	// registry that also carries the Go runtime and process collectors.
	Registry *prometheus.Registry
}

// Server owns the gin engine and the listener.
type Server struct {
	cfg     Config
	deps    Deps
	engine  *gin.Engine
	metrics *metrics

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	errs     chan error
}

// New builds the router. Missing dependencies fail with
// [sserr.CodeInternalConfiguration].
func New(cfg Config, metricsCfg MetricsConfig, deps Deps) (*Server, error) {
	switch {
	case deps.Verifier == nil:
		return nil, missingDep("verifier")
	case deps.Issuer == nil:
		return nil, missingDep("session issuer")
	case deps.Sessions == nil:
		return nil, missingDep("session validator")
	case deps.Identities == nil:
		return nil, missingDep("identity resolver")
	case deps.Tokens == nil:
		return nil, missingDep("activation tokens")
	}
	private := deps.Registry == nil
	if private {
		deps.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: newMetrics(deps.Registry, private),
		errs:    make(chan error, 1),
	}
	s.engine = s.routes(metricsCfg)
	return s, nil
}

func missingDep(name string) error {
	return sserr.Newf(sserr.CodeInternalConfiguration, "server: %s is required", name)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and serves in the background. Bind errors are
// returned; later serve errors arrive on [Server.Errors].
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return sserr.New(sserr.CodeConflict, "server: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailable, "server: failed to listen on %s", s.cfg.Addr)
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.http = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server: http server failed", "error", err)
			s.errs <- err
		}
	}()
	slog.InfoContext(ctx, "server: listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Errors delivers a fatal serve error, at most once.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Shutdown drains in-flight requests, bounded by ctx and the configured
// shutdown timeout. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "server: graceful shutdown failed")
	}
	return nil
}
