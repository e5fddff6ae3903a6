// Package redis provides the Redis client the identity service uses as a
// key set cache shared between replicas, with OpenTelemetry tracing and
// structured error handling.
//
// # Configuration
//
// Redis is optional. When [Config.Enabled] is false the service keeps key
// sets in process memory only:
//
//	cfg := redis.DefaultConfig()
//	cfg.Enabled = true
//	client, err := redis.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// For testing, use [NewFromClient] to inject a mock [Cmdable].
//
// # Errors
//
// A missing key is reported as [sserr.CodeNotFound] so callers can tell a
// cache miss from an outage with sserr.IsNotFound.
package redis

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// maxStatementTruncateLen bounds the command text recorded in spans.
const maxStatementTruncateLen = 100

const (
	// DefaultHost is the in-cluster Redis service name.
	DefaultHost = "redis.databases.svc.cluster.local"

	// DefaultPort is the standard Redis port.
	DefaultPort = 6379

	// DefaultPoolSize is the maximum number of pooled connections. Key set
	// traffic is a handful of commands per rotation, so the pool is small.
	DefaultPoolSize = 10

	// DefaultDialTimeout bounds connection establishment.
	DefaultDialTimeout = 5 * time.Second

	// DefaultReadTimeout bounds a single read.
	DefaultReadTimeout = 2 * time.Second

	// DefaultWriteTimeout bounds a single write.
	DefaultWriteTimeout = 2 * time.Second

	// DefaultHealthTimeout bounds a health check ping when the caller's
	// context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a password that redacts itself when formatted, serialized or
// logged. Use [Secret.Value] to read it.
type Secret string

const redacted = "[REDACTED]"

// String returns a redacted placeholder.
func (s Secret) String() string { return redacted }

// GoString returns a redacted placeholder for %#v.
func (s Secret) GoString() string { return redacted }

// MarshalText returns a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// LogValue implements [slog.LogValuer].
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// Value returns the raw password.
func (s Secret) Value() string { return string(s) }

// Config holds the Redis connection configuration. When URI is set it takes
// precedence over Host, Port, DB and Password.
type Config struct {
	// Enabled turns on the shared key set cache.
	Enabled bool `json:"enabled" yaml:"enabled" env:"IDENTITY_REDIS_ENABLED"`

	// URI is a redis:// or rediss:// connection string.
	URI string `json:"uri,omitempty" yaml:"uri" env:"IDENTITY_REDIS_URI"`

	Host     string `json:"host,omitempty" yaml:"host" env:"IDENTITY_REDIS_HOST"`
	Port     int    `json:"port,omitempty" yaml:"port" env:"IDENTITY_REDIS_PORT"`
	DB       int    `json:"db" yaml:"db" env:"IDENTITY_REDIS_DB"`
	Password Secret `json:"password" yaml:"password" env:"IDENTITY_REDIS_PASSWORD"`

	// PoolSize is the maximum number of connections in the pool.
	PoolSize int `json:"pool_size,omitempty" yaml:"pool_size" env:"IDENTITY_REDIS_POOL_SIZE"`

	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"IDENTITY_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"IDENTITY_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"IDENTITY_REDIS_WRITE_TIMEOUT"`

	// TLSEnabled turns on TLS for structured configuration. A rediss://
	// URI enables TLS on its own.
	TLSEnabled bool `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"IDENTITY_REDIS_TLS_ENABLED"`
}

// DefaultConfig returns a disabled Config with in-cluster defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		PoolSize:     DefaultPoolSize,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate applies defaults to zero-valued fields and checks the rest.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: config db must not be negative, got %d", c.DB)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: config pool_size must be >= 1, got %d", c.PoolSize)
	}
	for name, d := range map[string]time.Duration{
		"dial_timeout":  c.DialTimeout,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("redis: config %s must not be negative, got %v", name, d)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement shortens s to [maxStatementTruncateLen] runes for span
// attributes.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
