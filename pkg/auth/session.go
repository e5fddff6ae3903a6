package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// DefaultSessionTTL is the fixed lifetime of a session token.
const DefaultSessionTTL = 24 * time.Hour

// MinSessionSecretLen is the minimum HS256 key length in bytes.
const MinSessionSecretLen = 32

// sessionAlgorithm is the only algorithm sessions are signed or accepted with.
var sessionAlgorithm = jwt.SigningMethodHS256

// SessionConfig is the process-wide session configuration. Build it once at
// startup and pass it by value; issuers and validators never read ambient
// state.
type SessionConfig struct {
	// Secret is the HS256 signing key shared by every replica.
	Secret Secret `json:"secret" yaml:"secret" env:"IDENTITY_SESSION_SECRET" required:"true"`

	// TTL is the session lifetime. Service configuration always uses
	// [DefaultSessionTTL]; the field is not read from files or the
	// environment and exists for callers constructing a config in code.
	TTL time.Duration `json:"-" yaml:"-"`

	// Issuer, when set, is written to and required in the iss claim.
	Issuer string `json:"issuer,omitempty" yaml:"issuer" env:"IDENTITY_SESSION_ISSUER"`
}

// DefaultSessionConfig returns a config with the default TTL and no secret.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{TTL: DefaultSessionTTL}
}

// Validate checks the secret length and TTL.
func (c SessionConfig) Validate() error {
	if len(c.Secret.Value()) < MinSessionSecretLen {
		return sserr.Newf(sserr.CodeValidation,
			"auth: session secret must be at least %d bytes", MinSessionSecretLen)
	}
	if c.TTL <= 0 {
		return sserr.New(sserr.CodeValidation, "auth: session ttl must be positive")
	}
	return nil
}

// SessionClaims describes an issued session.
type SessionClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionOption configures a [SessionIssuer] or [SessionValidator].
type SessionOption func(*sessionCore)

// WithSessionClock overrides the clock.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(c *sessionCore) {
		if now != nil {
			c.now = now
		}
	}
}

type sessionCore struct {
	cfg    SessionConfig
	key    []byte
	now    func() time.Time
	tracer trace.Tracer
}

func newSessionCore(cfg SessionConfig, opts []SessionOption) (sessionCore, error) {
	if err := cfg.Validate(); err != nil {
		return sessionCore{}, err
	}
	c := sessionCore{
		cfg:    cfg,
		key:    []byte(cfg.Secret.Value()),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c, nil
}

// SessionIssuer mints session tokens. It has no side effects beyond
// signing and is safe for concurrent use.
type SessionIssuer struct {
	core sessionCore
}

// NewSessionIssuer validates cfg and returns an issuer.
func NewSessionIssuer(cfg SessionConfig, opts ...SessionOption) (*SessionIssuer, error) {
	core, err := newSessionCore(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &SessionIssuer{core: core}, nil
}

// Issue returns a signed token with sub=userID, iat=now and exp=now+TTL.
// Times are truncated to whole seconds, so ExpiresAt-IssuedAt is exactly
// the TTL.
func (i *SessionIssuer) Issue(userID string) (string, SessionClaims, error) {
	if userID == "" {
		return "", SessionClaims{}, sserr.New(sserr.CodeValidationRequired,
			"auth: session subject must not be empty")
	}

	issuedAt := jwt.NewNumericDate(i.core.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(i.core.cfg.TTL))
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    i.core.cfg.Issuer,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	token, err := jwt.NewWithClaims(sessionAlgorithm, claims).SignedString(i.core.key)
	if err != nil {
		return "", SessionClaims{}, sserr.Wrap(err, sserr.CodeInternal,
			"auth: failed to sign session token")
	}
	return token, SessionClaims{
		Subject:   userID,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// SessionTokenValidator resolves a session token to its user id. The
// [AuthenticationFilter] depends on this interface rather than on
// [*SessionValidator] so tests and alternative session stores can plug in.
type SessionTokenValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// SessionValidator verifies session tokens minted by [SessionIssuer].
// It is safe for concurrent use.
type SessionValidator struct {
	core   sessionCore
	parser *jwt.Parser
}

var _ SessionTokenValidator = (*SessionValidator)(nil)

// NewSessionValidator validates cfg and returns a validator.
func NewSessionValidator(cfg SessionConfig, opts ...SessionOption) (*SessionValidator, error) {
	core, err := newSessionCore(cfg, opts)
	if err != nil {
		return nil, err
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{sessionAlgorithm.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(core.now),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	return &SessionValidator{core: core, parser: jwt.NewParser(parserOpts...)}, nil
}

// Validate returns the token's subject.
//
// Errors: sserr.CodeSessionExpired when a correctly signed token is past
// exp; sserr.CodeSessionInvalid for everything else (bad signature, wrong
// algorithm, malformed token, missing sub or exp, wrong issuer). A token
// that is both expired and badly signed is invalid.
func (v *SessionValidator) Validate(ctx context.Context, token string) (string, error) {
	_, span := startSpan(ctx, v.core.tracer, "auth.ValidateSession")
	defer span.End()

	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.core.key, nil
	})
	if err != nil {
		classified := classifySessionError(err)
		finishSpan(span, classified)
		return "", classified
	}
	if claims.Subject == "" {
		err := sserr.New(sserr.CodeSessionInvalid, "auth: session token has no subject")
		finishSpan(span, err)
		return "", err
	}
	return claims.Subject, nil
}

func classifySessionError(err error) *sserr.Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeSessionExpired, "auth: session has expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeSessionInvalid, "auth: session signature is invalid")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeSessionInvalid, "auth: session token is malformed")
	default:
		return sserr.Wrap(err, sserr.CodeSessionInvalid, "auth: session token is invalid")
	}
}
