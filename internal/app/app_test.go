package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-identity/internal/activation"
	"github.com/StricklySoft/stricklysoft-identity/internal/server"
	"github.com/StricklySoft/stricklysoft-identity/internal/testutil"
	"github.com/StricklySoft/stricklysoft-identity/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-identity/internal/users"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	"github.com/StricklySoft/stricklysoft-identity/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/lifecycle"
)

// ===========================================================================
// Config Tests
// ===========================================================================

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Session.Secret = fixtures.TestSessionSecret
	cfg.Postgres.Password = "postgres"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	assert.Equal(t, server.DefaultAddr, cfg.HTTP.Addr)
	assert.Equal(t, auth.DefaultJWKSURL, cfg.Provider.JWKSURL)
	assert.True(t, cfg.Provider.CacheEnabled)
	assert.Equal(t, auth.DefaultSessionTTL, cfg.Session.TTL)
	assert.True(t, cfg.Cookie.Secure)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Metrics.Enabled)

	// The session secret has no default.
	testutil.AssertErrorCode(t, cfg.Validate(), sserr.CodeValidation)
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		code   sserr.Code
	}{
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }, sserr.CodeValidationRequired},
		{"short secret", func(c *Config) { c.Session.Secret = "short" }, sserr.CodeValidation},
		{"relative jwks url", func(c *Config) { c.Provider.JWKSURL = "/jwks" }, sserr.CodeValidationFormat},
		{"ftp jwks url", func(c *Config) { c.Provider.JWKSURL = "ftp://keys.example.com/jwks" }, sserr.CodeValidationFormat},
		{"negative cache ttl", func(c *Config) { c.Provider.CacheTTL = -time.Second }, sserr.CodeValidation},
		{"bad postgres uri", func(c *Config) { c.Postgres.URI = "mysql://db" }, sserr.CodeValidation},
		{"bad redis when enabled", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.URI = "http://cache"
		}, sserr.CodeValidation},
		{"negative resolver timeout", func(c *Config) { c.Resolver.Timeout = -time.Second }, sserr.CodeValidation},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }, sserr.CodeValidationFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			testutil.AssertErrorCode(t, cfg.Validate(), tt.code)
		})
	}
}

func TestConfig_RedisIgnoredWhenDisabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Redis.URI = "http://cache"
	assert.NoError(t, cfg.Validate())
}

func TestLogConfig_SlogLevel(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{"": "INFO", "debug": "DEBUG", "WARN": "WARN", "error": "ERROR"} {
		lvl, err := LogConfig{Level: in}.SlogLevel()
		require.NoError(t, err, in)
		assert.Equal(t, want, lvl.String(), in)
	}
}

// Environment tests cannot run in parallel.

func TestConfig_LoadFileThenEnv(t *testing.T) {
	path := testutil.TempConfigFile(t, `
http:
  addr: ":9090"
session:
  secret: "from-file-secret-0123456789abcdef"
  ttl: 2h
provider:
  jwks_url: "https://keys.example.com/jwks"
  cache_enabled: false
postgres:
  host: db.internal
  password: file-password
log:
  level: debug
`, ".yaml")
	t.Setenv("IDENTITY_HTTP_ADDR", ":7070")
	t.Setenv("IDENTITY_COOKIE_DOMAIN", "example.com")
	t.Setenv("IDENTITY_REDIS_ENABLED", "true")
	t.Setenv("IDENTITY_REDIS_HOST", "cache.internal")

	cfg := DefaultConfig()
	require.NoError(t, config.New().WithFile(path).Load(cfg))

	assert.Equal(t, ":7070", cfg.HTTP.Addr, "env wins over file")
	assert.Equal(t, "from-file-secret-0123456789abcdef", cfg.Session.Secret.Value())
	assert.Equal(t, auth.DefaultSessionTTL, cfg.Session.TTL, "the session lifetime is not configurable")
	assert.Equal(t, "https://keys.example.com/jwks", cfg.Provider.JWKSURL)
	assert.False(t, cfg.Provider.CacheEnabled)
	assert.Equal(t, auth.DefaultFetchTimeout, cfg.Provider.FetchTimeout, "defaults survive")
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "file-password", cfg.Postgres.Password.Value())
	assert.Equal(t, "example.com", cfg.Cookie.Domain)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestConfig_LoadJSONFile verifies a JSON file can supply every secret.
func TestConfig_LoadJSONFile(t *testing.T) {
	path := testutil.TempConfigFile(t, `{
  "session": {"secret": "json-file-secret-0123456789abcdef", "ttl": "1h"},
  "postgres": {"password": "json-pg-password"},
  "redis": {"password": "json-redis-password"}
}`, ".json")

	cfg := DefaultConfig()
	require.NoError(t, config.New().WithFile(path).Load(cfg))

	assert.Equal(t, "json-file-secret-0123456789abcdef", cfg.Session.Secret.Value())
	assert.Equal(t, auth.DefaultSessionTTL, cfg.Session.TTL)
	assert.Equal(t, "json-pg-password", cfg.Postgres.Password.Value())
	assert.Equal(t, "json-redis-password", cfg.Redis.Password.Value())
}

func TestConfig_LoadRequiresSecret(t *testing.T) {
	t.Setenv("IDENTITY_SESSION_SECRET", "")

	err := config.New().Load(DefaultConfig())
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	assert.Contains(t, err.Error(), "Session.Secret")
}

// ===========================================================================
// App Tests
// ===========================================================================

type testInfra struct {
	migrations atomic.Int32
	closed     atomic.Int32
	migrateErr error
}

func (ti *testInfra) infra() infra {
	return infra{
		users:  users.NewMemoryStore(),
		tokens: activation.NewMemoryStore(),
		checks: map[string]server.HealthCheck{
			"postgres": func(context.Context) error { return nil },
		},
		migrate: func(context.Context) error {
			ti.migrations.Add(1)
			return ti.migrateErr
		},
		close: func() { ti.closed.Add(1) },
	}
}

func newTestApp(t *testing.T, ti *testInfra) (*App, *fixtures.ProviderKey) {
	t.Helper()
	key := fixtures.NewProviderKey(t, fixtures.TestKeyID)
	jwks := fixtures.ServeJWKS(t, key)

	cfg := validConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Provider.JWKSURL = jwks.JWKSURL()

	a, err := assemble(cfg, ti.infra())
	require.NoError(t, err)
	return a, key
}

func TestApp_Lifecycle(t *testing.T) {
	t.Parallel()
	ti := &testInfra{}
	a, key := newTestApp(t, ti)
	assert.Equal(t, lifecycle.StateUnknown, a.State())

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, lifecycle.StateRunning, a.State())
	assert.Equal(t, int32(1), ti.migrations.Load())
	require.NotEmpty(t, a.Addr())

	resp, err := http.Get("http://" + a.Addr() + "/health")
	require.NoError(t, err)
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"postgres": "ok", "lifecycle": "ok"}, health.Checks)

	req, err := http.NewRequest(http.MethodPost, "http://"+a.Addr()+"/api/user/login",
		strings.NewReader(`{"address":"`+fixtures.TestWallet+`"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+fixtures.ValidExternalToken(t, key))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.RequireCookie(t, resp, auth.SessionCookieName)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, lifecycle.StateStopped, a.State())
	assert.Equal(t, int32(1), ti.closed.Load())

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, int32(1), ti.closed.Load(), "connections are released once")
}

func TestApp_MigrationFailure(t *testing.T) {
	t.Parallel()
	ti := &testInfra{migrateErr: errors.New("relation users already exists")}
	a, _ := newTestApp(t, ti)

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, lifecycle.StateFailed, a.State())
	assert.Empty(t, a.Addr(), "nothing listens after a failed migration")

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, int32(1), ti.closed.Load())
}

// TestApp_HealthBeforeStart verifies the lifecycle check reports the
// service as unavailable until it is running.
func TestApp_HealthBeforeStart(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, &testInfra{})

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lifecycle"`)
}

func TestKeySetClient(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().Provider
	keys, err := keySetClient(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &auth.CachingKeySetClient{}, keys)

	cfg.CacheEnabled = false
	keys, err = keySetClient(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &auth.HTTPKeySetClient{}, keys)

	cfg.JWKSURL = "::not a url"
	_, err = keySetClient(cfg, nil)
	testutil.AssertErrorCode(t, err, sserr.CodeInternalConfiguration)
}
