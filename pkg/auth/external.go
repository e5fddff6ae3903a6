package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// maxTokenSize is the largest token accepted, in bytes. Provider tokens are
// well under 2 KiB; anything near this size is not a real token.
const maxTokenSize = 8192

// tokenPrefixLen is how much of a token may appear in logs.
const tokenPrefixLen = 20

// Wallet is one wallet bound to the external identity.
type Wallet struct {
	PublicKey string `json:"public_key"`
	Type      string `json:"type"`
	Curve     string `json:"curve"`
}

// ExternalTokenClaims is the verified payload of a provider token. Fields
// the provider adds later are ignored.
type ExternalTokenClaims struct {
	Email             string           `json:"email"`
	Name              string           `json:"name,omitempty"`
	Wallets           []Wallet         `json:"wallets,omitempty"`
	Verifier          string           `json:"verifier"`
	VerifierID        string           `json:"verifierId"`
	Issuer            string           `json:"iss"`
	Audience          jwt.ClaimStrings `json:"aud"`
	ExpiresAt         int64            `json:"exp"`
	IssuedAt          int64            `json:"iat"`
	Nonce             string           `json:"nonce,omitempty"`
	ProfileImage      string           `json:"profileImage,omitempty"`
	AggregateVerifier string           `json:"aggregateVerifier,omitempty"`
}

// keySetInvalidator is implemented by key set clients that cache.
type keySetInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ExternalTokenVerifier verifies tokens issued by the identity provider.
// It is safe for concurrent use.
type ExternalTokenVerifier struct {
	keys   KeySetClient
	now    func() time.Time
	tracer trace.Tracer
}

// VerifierOption configures an [ExternalTokenVerifier].
type VerifierOption func(*ExternalTokenVerifier)

// WithVerifierClock overrides the clock used for the expiry check.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *ExternalTokenVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewExternalTokenVerifier returns a verifier that looks up signing keys
// through keys. If keys also implements Invalidate(ctx) error, an unknown
// kid triggers one invalidation and refetch before the token is rejected.
func NewExternalTokenVerifier(keys KeySetClient, opts ...VerifierOption) *ExternalTokenVerifier {
	v := &ExternalTokenVerifier{
		keys:   keys,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks token and returns its claims.
//
// Checks run cheapest first and claims are only trusted after the
// signature is verified:
//
//  1. structure: three segments, a decodable header naming a kid
//  2. key lookup by kid in the provider's key set
//  3. conversion of the key with [ToPublicKey]
//  4. signature, restricted to the key's algorithm
//  5. payload decoding into [ExternalTokenClaims]
//  6. expiry, at one-second granularity
//
// Errors: sserr.CodeTokenInvalid for steps 1 to 5, sserr.CodeTokenExpired
// for step 6, and sserr.CodeKeySetUnavailable when the key set cannot be
// fetched.
func (v *ExternalTokenVerifier) Verify(ctx context.Context, token string) (*ExternalTokenClaims, error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.VerifyExternalToken")
	defer span.End()

	claims, err := v.verify(ctx, token)
	if err != nil {
		finishSpan(span, err)
		slog.WarnContext(ctx, "auth: external token rejected",
			"code", sserr.GetCode(err),
			"token_prefix", TokenPrefix(token),
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("auth.verifier", claims.Verifier))
	return claims, nil
}

func (v *ExternalTokenVerifier) verify(ctx context.Context, token string) (*ExternalTokenClaims, error) {
	if token == "" {
		return nil, sserr.New(sserr.CodeTokenInvalid, "auth: token is empty")
	}
	if len(token) > maxTokenSize {
		return nil, sserr.Newf(sserr.CodeTokenInvalid,
			"auth: token exceeds maximum size of %d bytes", maxTokenSize)
	}

	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return nil, sserr.New(sserr.CodeTokenInvalid, "auth: token is malformed")
	}

	decoder := jwt.NewParser()
	rawHeader, err := decoder.DecodeSegment(segments[0])
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenInvalid, "auth: token header is not base64url")
	}
	var header struct {
		KeyID string `json:"kid"`
	}
	if err := json.Unmarshal(rawHeader, &header); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenInvalid, "auth: token header is not JSON")
	}
	if header.KeyID == "" {
		return nil, sserr.New(sserr.CodeTokenInvalid, "auth: token header has no key id")
	}

	key, err := v.lookupKey(ctx, header.KeyID)
	if err != nil {
		return nil, err
	}

	publicKey, err := ToPublicKey(key)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenInvalid, "auth: no matching key").
			WithDetail("kid", header.KeyID)
	}

	verifier := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmForKey(key)}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := verifier.Parse(token, func(*jwt.Token) (any, error) {
		return publicKey, nil
	}); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenInvalid, "auth: token signature verification failed")
	}

	rawPayload, err := decoder.DecodeSegment(segments[1])
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenInvalid, "auth: token payload is not base64url")
	}
	var claims ExternalTokenClaims
	if err := json.Unmarshal(rawPayload, &claims); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenInvalid, "auth: token payload is not valid claims JSON")
	}
	if claims.ExpiresAt == 0 {
		return nil, sserr.New(sserr.CodeTokenInvalid, "auth: token has no exp claim")
	}

	if claims.ExpiresAt < v.now().Unix() {
		return nil, sserr.New(sserr.CodeTokenExpired, "auth: token has expired").
			WithDetail("exp", claims.ExpiresAt)
	}
	return &claims, nil
}

// lookupKey finds kid in the key set, forcing one refetch through a
// caching client before giving up so rotated keys are picked up.
func (v *ExternalTokenVerifier) lookupKey(ctx context.Context, kid string) (ExternalKey, error) {
	keys, err := v.fetch(ctx)
	if err != nil {
		return ExternalKey{}, err
	}
	if key, ok := findKey(keys, kid); ok {
		return key, nil
	}

	inv, ok := v.keys.(keySetInvalidator)
	if !ok {
		return ExternalKey{}, noMatchingKey(kid)
	}
	if err := inv.Invalidate(ctx); err != nil {
		slog.WarnContext(ctx, "auth: key set invalidation failed", "error", err)
	}

	keys, err = v.fetch(ctx)
	if err != nil {
		return ExternalKey{}, err
	}
	if key, ok := findKey(keys, kid); ok {
		return key, nil
	}
	return ExternalKey{}, noMatchingKey(kid)
}

func (v *ExternalTokenVerifier) fetch(ctx context.Context) ([]ExternalKey, error) {
	keys, err := v.keys.FetchKeys(ctx)
	if err == nil {
		return keys, nil
	}
	if sserr.HasCode(err, sserr.CodeKeySetUnavailable) {
		return nil, err
	}
	return nil, sserr.Wrap(err, sserr.CodeKeySetUnavailable,
		"auth: failed to fetch identity provider key set")
}

func noMatchingKey(kid string) *sserr.Error {
	return sserr.New(sserr.CodeTokenInvalid, "auth: no matching key").WithDetail("kid", kid)
}

// TokenPrefix returns the part of a token that may be logged.
func TokenPrefix(token string) string {
	if len(token) <= tokenPrefixLen {
		return token
	}
	return token[:tokenPrefixLen] + "..."
}
