package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// DefaultJWKSURL is the identity provider's published key set.
const DefaultJWKSURL = "https://api-auth.web3auth.io/jwks"

// DefaultFetchTimeout bounds a single key set request so a slow provider
// cannot hold a login request indefinitely.
const DefaultFetchTimeout = 5 * time.Second

// maxKeySetSize caps the key set response body at 1 MiB.
const maxKeySetSize = 1 << 20

// retryInterval is the pause before the single retry of a transient fetch
// failure.
const retryInterval = 200 * time.Millisecond

// ExternalKey is one key from the provider's key set, as published. Fields
// follow RFC 7517 naming. Values are kept in their transport encoding; use
// [ToPublicKey] to obtain a verification key.
type ExternalKey struct {
	KeyID            string   `json:"kid"`
	KeyType          string   `json:"kty"`
	Algorithm        string   `json:"alg,omitempty"`
	Use              string   `json:"use,omitempty"`
	Curve            string   `json:"crv,omitempty"`
	X                string   `json:"x,omitempty"`
	Y                string   `json:"y,omitempty"`
	N                string   `json:"n,omitempty"`
	E                string   `json:"e,omitempty"`
	CertificateChain []string `json:"x5c,omitempty"`
}

// KeySet is the JSON document served at a JWKS endpoint.
type KeySet struct {
	Keys []ExternalKey `json:"keys"`
}

// findKey returns the first key in keys whose identifier is kid.
func findKey(keys []ExternalKey, kid string) (ExternalKey, bool) {
	for _, k := range keys {
		if k.KeyID == kid {
			return k, true
		}
	}
	return ExternalKey{}, false
}

// KeySetClient returns the identity provider's current key set.
//
// Implementations fail with sserr.CodeKeySetUnavailable when the set cannot
// be obtained. The returned slice must not be modified by callers.
type KeySetClient interface {
	FetchKeys(ctx context.Context) ([]ExternalKey, error)
}

// HTTPClient is the subset of [*http.Client] used to fetch key sets.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPKeySetClient fetches the key set over HTTP on every call. Wrap it in a
// [CachingKeySetClient] to avoid a network round trip per verification.
//
// A network error or 5xx response is retried once after a short pause.
// Any other failure, or a second transient failure, is returned as
// sserr.CodeKeySetUnavailable.
type HTTPKeySetClient struct {
	url     string
	client  HTTPClient
	timeout time.Duration
	tracer  trace.Tracer
}

var _ KeySetClient = (*HTTPKeySetClient)(nil)

// KeySetOption configures an [HTTPKeySetClient].
type KeySetOption func(*HTTPKeySetClient)

// WithHTTPClient sets the HTTP client used for fetches.
func WithHTTPClient(client HTTPClient) KeySetOption {
	return func(c *HTTPKeySetClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithFetchTimeout bounds each fetch attempt. Non-positive values are ignored.
func WithFetchTimeout(d time.Duration) KeySetOption {
	return func(c *HTTPKeySetClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewHTTPKeySetClient returns a client for the key set at jwksURL, which
// must be an absolute http or https URL.
func NewHTTPKeySetClient(jwksURL string, opts ...KeySetOption) (*HTTPKeySetClient, error) {
	u, err := url.Parse(jwksURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, sserr.Newf(sserr.CodeValidationFormat,
			"auth: key set URL %q must be an absolute http(s) URL", jwksURL)
	}

	c := &HTTPKeySetClient{
		url:     jwksURL,
		client:  http.DefaultClient,
		timeout: DefaultFetchTimeout,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchKeys downloads and decodes the key set.
func (c *HTTPKeySetClient) FetchKeys(ctx context.Context) ([]ExternalKey, error) {
	ctx, span := startSpan(ctx, c.tracer, "auth.FetchKeySet")
	defer span.End()

	policy := backoff.NewConstantBackOff(retryInterval)
	keys, err := backoff.RetryWithData[[]ExternalKey](func() ([]ExternalKey, error) {
		return c.fetchOnce(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, 1), ctx))
	if err != nil {
		wrapped := sserr.Wrap(err, sserr.CodeKeySetUnavailable,
			"auth: failed to fetch identity provider key set")
		finishSpan(span, wrapped)
		return nil, wrapped
	}

	span.SetAttributes(attribute.Int("auth.keyset.size", len(keys)))
	return keys, nil
}

// fetchOnce performs one bounded request. Errors wrapped in
// backoff.Permanent are not retried.
func (c *HTTPKeySetClient) fetchOnce(ctx context.Context) ([]ExternalKey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("auth: failed to create key set request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: key set request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("auth: key set endpoint returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("auth: key set endpoint returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read key set response: %w", err)
	}

	var set KeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("auth: failed to parse key set: %w", err))
	}
	return set.Keys, nil
}
