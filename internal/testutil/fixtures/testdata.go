// Package fixtures provides shared test data constants and factory
// functions for the identity service test suite.
//
// The provider fixtures stand in for the external identity provider: EC
// signing keys, the JWKS document publishing them, an httptest server
// serving that document, and signed provider tokens. They deliberately do
// not import pkg/auth so auth's own tests can use them.
package fixtures

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Standard identity values used across auth, users and server tests.
const (
	// TestUserID is the default user id for unit tests.
	TestUserID = "5b0f4c3e-8a43-4a51-9d7e-3f3b1c2a9e10"

	// AltUserID is an alternative user id for tests requiring two users.
	AltUserID = "0e5c3b6a-2f61-4d0e-8f3a-6c9d2b1e7a44"

	// TestEmail is the default provider email claim.
	TestEmail = "alice@example.com"

	// TestWallet is the default wallet address sent at login.
	TestWallet = "0x9a8f3b2c1d4e5f60718293a4b5c6d7e8f9012345"

	// AltWallet is an alternative wallet address.
	AltWallet = "0x1111111111111111111111111111111111111111"

	// TestKeyID is the default provider key id.
	TestKeyID = "provider-key-1"

	// RotatedKeyID is the key id used after a simulated rotation.
	RotatedKeyID = "provider-key-2"

	// TestVerifier is the provider verifier claim.
	TestVerifier = "torus"

	// TestSessionSecret is a 32+ byte HS256 secret for unit tests only.
	TestSessionSecret = "test-session-secret-0123456789abcdef"

	// TestSessionIssuer is the session iss claim in tests that set one.
	TestSessionIssuer = "stricklysoft-identity-test"
)

// ProviderKey is an identity provider signing key.
type ProviderKey struct {
	KeyID     string
	Algorithm string
	Private   *ecdsa.PrivateKey
}

// NewProviderKey generates a P-256 key published for ES256.
func NewProviderKey(t testing.TB, kid string) *ProviderKey {
	t.Helper()
	return NewProviderKeyOnCurve(t, kid, elliptic.P256(), "ES256")
}

// NewProviderKeyOnCurve generates a key on curve published for alg.
func NewProviderKeyOnCurve(t testing.TB, kid string, curve elliptic.Curve, alg string) *ProviderKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err, "failed to generate provider key")
	return &ProviderKey{KeyID: kid, Algorithm: alg, Private: priv}
}

// JWK returns the public half of k in JWK form.
func (k *ProviderKey) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &k.Private.PublicKey,
		KeyID:     k.KeyID,
		Algorithm: k.Algorithm,
		Use:       "sig",
	}
}

// JWKS returns the JSON key set document publishing keys.
func JWKS(t testing.TB, keys ...*ProviderKey) []byte {
	t.Helper()
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.JWK())
	}
	data, err := json.Marshal(set)
	require.NoError(t, err, "failed to encode JWKS")
	return data
}

// JWKSServer is an httptest server standing in for the provider's JWKS
// endpoint. Its document and status can be changed while it runs.
type JWKSServer struct {
	*httptest.Server

	mu     sync.Mutex
	body   []byte
	status int
	hits   atomic.Int64
}

// ServeJWKS starts a JWKS server publishing keys. It is closed by
// t.Cleanup.
func ServeJWKS(t testing.TB, keys ...*ProviderKey) *JWKSServer {
	t.Helper()
	s := &JWKSServer{body: JWKS(t, keys...), status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		status, body := s.status, s.body
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write(body)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// JWKSURL returns the key set URL.
func (s *JWKSServer) JWKSURL() string { return s.URL + "/jwks" }

// SetKeys replaces the published keys.
func (s *JWKSServer) SetKeys(t testing.TB, keys ...*ProviderKey) {
	t.Helper()
	body := JWKS(t, keys...)
	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
}

// SetBody replaces the raw response body.
func (s *JWKSServer) SetBody(body []byte) {
	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
}

// SetStatus makes the server answer with status. Non-200 responses carry
// no body.
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Hits returns how many requests the server has received.
func (s *JWKSServer) Hits() int { return int(s.hits.Load()) }

// ExternalClaims returns provider claims for email expiring at exp.
func ExternalClaims(email string, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iat":        exp.Add(-time.Hour).Unix(),
		"exp":        exp.Unix(),
		"iss":        "https://api-auth.web3auth.io",
		"aud":        "test-client-id",
		"email":      email,
		"name":       "Alice",
		"verifier":   TestVerifier,
		"verifierId": email,
		"wallets": []map[string]string{
			{"public_key": "03a1b2c3", "type": "web3auth_app_key", "curve": "secp256k1"},
		},
	}
}

// SignExternalToken signs claims with key, naming the key's id in the
// header.
func SignExternalToken(t testing.TB, key *ProviderKey, claims jwt.Claims) string {
	t.Helper()
	method := jwt.GetSigningMethod(key.Algorithm)
	require.NotNil(t, method, "unknown signing method %q", key.Algorithm)

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.KeyID
	signed, err := token.SignedString(key.Private)
	require.NoError(t, err, "failed to sign provider token")
	return signed
}

// ValidExternalToken returns a token for [TestEmail] signed by key and
// valid for an hour.
func ValidExternalToken(t testing.TB, key *ProviderKey) string {
	t.Helper()
	return SignExternalToken(t, key, ExternalClaims(TestEmail, time.Now().Add(time.Hour)))
}
