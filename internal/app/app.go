// Package app assembles the identity service from its configuration and
// runs it under a [lifecycle.Service]: starting migrates the schema and
// opens the HTTP listener, stopping drains requests and closes the pools.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/StricklySoft/stricklysoft-identity/internal/activation"
	"github.com/StricklySoft/stricklysoft-identity/internal/server"
	"github.com/StricklySoft/stricklysoft-identity/internal/users"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/lifecycle"
)

// ServiceName identifies the service in logs and traces.
const ServiceName = "stricklysoft-identity"

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

// infra holds what New opens against real backends. Tests substitute
// in-memory stores.
type infra struct {
	users   users.Store
	tokens  activation.Store
	shared  auth.SharedCache
	checks  map[string]server.HealthCheck
	migrate func(ctx context.Context) error
	close   func()
}

// App is a fully wired identity service.
type App struct {
	server  *server.Server
	service *lifecycle.Service
	release func()
}

// New connects to PostgreSQL and, when enabled, Redis, then wires the
// service. Nothing listens until [App.Start].
func New(ctx context.Context, cfg *Config) (*App, error) {
	db, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	in := infra{
		users:  users.NewPostgresStore(db),
		tokens: activation.NewPostgresStore(db),
		checks: map[string]server.HealthCheck{"postgres": db.Health},
		migrate: func(ctx context.Context) error {
			return db.Migrate(ctx, append(append([]postgres.Migration{}, users.Migrations...), activation.Migrations...))
		},
	}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return nil, err
		}
		in.shared = cache
		in.checks["redis"] = cache.Health
	}

	in.close = func() {
		if cache != nil {
			if err := cache.Close(); err != nil {
				slog.Warn("app: failed to close redis client", "error", err)
			}
		}
		db.Close()
	}

	a, err := assemble(cfg, in)
	if err != nil {
		in.close()
		return nil, err
	}
	return a, nil
}

func assemble(cfg *Config, in infra) (*App, error) {
	keys, err := keySetClient(cfg.Provider, in.shared)
	if err != nil {
		return nil, err
	}
	issuer, err := auth.NewSessionIssuer(cfg.Session)
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionValidator(cfg.Session)
	if err != nil {
		return nil, err
	}

	a := &App{release: func() {}}
	if in.close != nil {
		a.release = sync.OnceFunc(in.close)
	}
	checks := make(map[string]server.HealthCheck, len(in.checks)+1)
	for name, check := range in.checks {
		checks[name] = check
	}
	checks["lifecycle"] = func(ctx context.Context) error { return a.service.Health(ctx) }

	a.server, err = server.New(cfg.HTTP, cfg.Metrics, server.Deps{
		Verifier:   auth.NewExternalTokenVerifier(keys),
		Issuer:     issuer,
		Sessions:   sessions,
		Identities: users.NewResolver(in.users, cfg.Resolver),
		Tokens:     activation.NewService(in.tokens, cfg.Activation),
		Cookie:     cfg.Cookie,
		Checks:     checks,
	})
	if err != nil {
		return nil, err
	}

	a.service, err = lifecycle.NewBuilder(ServiceName, Version).
		WithLogger(slog.Default()).
		WithOnStart(func(ctx context.Context) error {
			if in.migrate != nil {
				if err := in.migrate(ctx); err != nil {
					return err
				}
			}
			return a.server.Start(ctx)
		}).
		WithOnStop(func(ctx context.Context) error {
			err := a.server.Shutdown(ctx)
			a.release()
			return err
		}).
		OnStateChange(func(from, to lifecycle.State) {
			slog.Info("app: state changed", "from", from.String(), "to", to.String())
		}).
		Build()
	if err != nil {
		return nil, err
	}
	return a, nil
}

// keySetClient returns the JWKS client, cached in memory and optionally
// in shared when caching is enabled.
func keySetClient(cfg ProviderConfig, shared auth.SharedCache) (auth.KeySetClient, error) {
	upstream, err := auth.NewHTTPKeySetClient(cfg.JWKSURL, auth.WithFetchTimeout(cfg.FetchTimeout))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "app: invalid key set client configuration")
	}
	if !cfg.CacheEnabled {
		return upstream, nil
	}
	var opts []auth.CacheOption
	if shared != nil {
		opts = append(opts, auth.WithSharedCache(shared, auth.DefaultSharedKeySetKey))
	}
	return auth.NewCachingKeySetClient(upstream, cfg.CacheTTL, opts...), nil
}

// Start migrates the schema and starts serving.
func (a *App) Start(ctx context.Context) error {
	return a.service.Start(ctx)
}

// Shutdown drains in-flight requests and releases every connection. An
// app that never reached Running only releases its connections.
func (a *App) Shutdown(ctx context.Context) error {
	if a.service.State() != lifecycle.StateRunning {
		a.release()
		return nil
	}
	return a.service.Stop(ctx)
}

// Errors delivers a fatal serve error after Start.
func (a *App) Errors() <-chan error {
	return a.server.Errors()
}

// Addr returns the bound listener address, or "" before Start.
func (a *App) Addr() string {
	return a.server.Addr()
}

// State returns the current lifecycle state.
func (a *App) State() lifecycle.State {
	return a.service.State()
}

// Handler exposes the router.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}
