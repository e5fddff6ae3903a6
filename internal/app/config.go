package app

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/StricklySoft/stricklysoft-identity/internal/activation"
	"github.com/StricklySoft/stricklysoft-identity/internal/server"
	"github.com/StricklySoft/stricklysoft-identity/internal/users"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// ProviderConfig locates the identity provider's signing keys.
type ProviderConfig struct {
	JWKSURL      string        `json:"jwks_url" yaml:"jwks_url" env:"IDENTITY_PROVIDER_JWKS_URL" required:"true"`
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" env:"IDENTITY_PROVIDER_FETCH_TIMEOUT"`

	// CacheEnabled keeps fetched key sets in memory for CacheTTL, and in
	// Redis as well when Redis is enabled.
	CacheEnabled bool          `json:"cache_enabled" yaml:"cache_enabled" env:"IDENTITY_PROVIDER_CACHE_ENABLED"`
	CacheTTL     time.Duration `json:"cache_ttl" yaml:"cache_ttl" env:"IDENTITY_PROVIDER_CACHE_TTL"`
}

// LogConfig selects the process log level.
type LogConfig struct {
	Level string `json:"level" yaml:"level" env:"IDENTITY_LOG_LEVEL"`
}

// SlogLevel parses Level. An empty level is info.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, sserr.Wrapf(err, sserr.CodeValidationFormat,
			"app: unknown log level %q", c.Level)
	}
	return lvl, nil
}

// Config is the complete service configuration.
type Config struct {
	HTTP       server.Config            `json:"http" yaml:"http"`
	Metrics    server.MetricsConfig     `json:"metrics" yaml:"metrics"`
	Session    auth.SessionConfig       `json:"session" yaml:"session"`
	Cookie     auth.CookieConfig        `json:"cookie" yaml:"cookie"`
	Provider   ProviderConfig           `json:"provider" yaml:"provider"`
	Postgres   postgres.Config          `json:"postgres" yaml:"postgres"`
	Redis      redis.Config             `json:"redis" yaml:"redis"`
	Resolver   users.ResolverConfig     `json:"resolver" yaml:"resolver"`
	Activation activation.ServiceConfig `json:"activation" yaml:"activation"`
	Log        LogConfig                `json:"log" yaml:"log"`
}

// DefaultConfig returns the production defaults. The session secret and
// database password have no default and must come from the environment
// or the config file.
func DefaultConfig() *Config {
	return &Config{
		HTTP:    server.DefaultConfig(),
		Metrics: server.DefaultMetricsConfig(),
		Session: auth.DefaultSessionConfig(),
		Cookie:  auth.DefaultCookieConfig(),
		Provider: ProviderConfig{
			JWKSURL:      auth.DefaultJWKSURL,
			FetchTimeout: auth.DefaultFetchTimeout,
			CacheEnabled: true,
			CacheTTL:     auth.DefaultKeySetCacheTTL,
		},
		Postgres:   *postgres.DefaultConfig(),
		Redis:      *redis.DefaultConfig(),
		Resolver:   users.ResolverConfig{Timeout: users.DefaultTimeout},
		Activation: activation.ServiceConfig{Timeout: activation.DefaultTimeout},
		Log:        LogConfig{Level: "info"},
	}
}

// Validate checks every section. Redis is only checked when enabled.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Provider.validate(); err != nil {
		return err
	}
	if err := c.Postgres.Validate(); err != nil {
		return sserr.Wrap(err, sserr.CodeValidation, "app: invalid postgres configuration")
	}
	if c.Redis.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "app: invalid redis configuration")
		}
	}
	if c.Resolver.Timeout < 0 || c.Activation.Timeout < 0 {
		return sserr.New(sserr.CodeValidation, "app: store timeouts must not be negative")
	}
	_, err := c.Log.SlogLevel()
	return err
}

func (c ProviderConfig) validate() error {
	u, err := url.Parse(c.JWKSURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return sserr.Newf(sserr.CodeValidationFormat,
			"app: provider jwks_url %q must be an absolute http(s) URL", c.JWKSURL)
	}
	if c.FetchTimeout < 0 || c.CacheTTL < 0 {
		return sserr.New(sserr.CodeValidation, "app: provider timeouts must not be negative")
	}
	return nil
}
