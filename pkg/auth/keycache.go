package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// DefaultKeySetCacheTTL is how long a fetched key set is served from cache.
// The provider rotates keys rarely; a kid miss forces a refetch regardless.
const DefaultKeySetCacheTTL = 10 * time.Minute

// DefaultSharedKeySetKey is the shared cache entry used by
// [WithSharedCache] when no key is given.
const DefaultSharedKeySetKey = "identity:jwks"

// DefaultKeySetLoadTimeout bounds one shared load. It is independent of
// any caller's context so that one abandoned request cannot fail the
// others waiting on the same load.
const DefaultKeySetLoadTimeout = 30 * time.Second

// DefaultMinRefreshInterval is the minimum time between two forced
// refetches triggered by [CachingKeySetClient.Invalidate].
const DefaultMinRefreshInterval = 5 * time.Second

const localKeySetKey = "keys"

// SharedCache is a cache shared between service replicas, such as the
// Redis client in pkg/clients/redis. Get must fail with an sserr NF error
// when the key is absent.
type SharedCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
}

// CachingKeySetClient serves key sets from memory, then from an optional
// shared cache, and only then from the upstream [KeySetClient]. Concurrent
// misses share one upstream fetch.
//
// Callers verifying a token whose kid is not in the cached set call
// [CachingKeySetClient.Invalidate] and fetch again, so a key rotation is
// picked up on the first token signed with the new key.
//
// Invalidations closer together than the minimum refresh interval are
// ignored, so a stream of tokens with unknown kids costs at most one
// upstream fetch per interval.
//
// Shared cache failures never fail a fetch; they are logged and the client
// falls through to the upstream.
type CachingKeySetClient struct {
	upstream    KeySetClient
	ttl         time.Duration
	loadTimeout time.Duration
	minRefresh  time.Duration
	now         func() time.Time
	local       *cache.Cache
	shared      SharedCache
	sharedKey   string
	group       singleflight.Group

	mu          sync.Mutex
	lastRefresh time.Time
}

var _ KeySetClient = (*CachingKeySetClient)(nil)

// CacheOption configures a [CachingKeySetClient].
type CacheOption func(*CachingKeySetClient)

// WithSharedCache adds a second cache level shared between replicas. An
// empty key selects [DefaultSharedKeySetKey].
func WithSharedCache(shared SharedCache, key string) CacheOption {
	return func(c *CachingKeySetClient) {
		if key == "" {
			key = DefaultSharedKeySetKey
		}
		c.shared = shared
		c.sharedKey = key
	}
}

// WithLoadTimeout bounds each shared load. A non-positive d keeps
// [DefaultKeySetLoadTimeout].
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *CachingKeySetClient) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithMinRefreshInterval sets the minimum time between forced refetches.
// Zero disables the limit.
func WithMinRefreshInterval(d time.Duration) CacheOption {
	return func(c *CachingKeySetClient) {
		c.minRefresh = max(d, 0)
	}
}

// NewCachingKeySetClient wraps upstream with a cache of the given TTL.
// A non-positive ttl selects [DefaultKeySetCacheTTL].
func NewCachingKeySetClient(upstream KeySetClient, ttl time.Duration, opts ...CacheOption) *CachingKeySetClient {
	if ttl <= 0 {
		ttl = DefaultKeySetCacheTTL
	}
	c := &CachingKeySetClient{
		upstream:    upstream,
		ttl:         ttl,
		loadTimeout: DefaultKeySetLoadTimeout,
		minRefresh:  DefaultMinRefreshInterval,
		now:         time.Now,
		local:       cache.New(ttl, 2*ttl),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchKeys returns the cached key set, loading it on a miss. The load
// runs detached from ctx; a cancelled caller stops waiting for it without
// failing the callers that share it.
func (c *CachingKeySetClient) FetchKeys(ctx context.Context) ([]ExternalKey, error) {
	if v, ok := c.local.Get(localKeySetKey); ok {
		return v.([]ExternalKey), nil
	}

	ch := c.group.DoChan(localKeySetKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		return c.load(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "auth: gave up waiting for key set")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]ExternalKey), nil
	}
}

// Invalidate drops the cached key set from both levels. The next
// [CachingKeySetClient.FetchKeys] goes upstream. Within the minimum
// refresh interval of the previous invalidation it does nothing.
func (c *CachingKeySetClient) Invalidate(ctx context.Context) error {
	if !c.allowRefresh() {
		slog.DebugContext(ctx, "auth: key set refetch throttled")
		return nil
	}
	c.local.Delete(localKeySetKey)
	c.group.Forget(localKeySetKey)
	if c.shared == nil {
		return nil
	}
	if _, err := c.shared.Del(ctx, c.sharedKey); err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"auth: failed to invalidate shared key set cache")
	}
	return nil
}

func (c *CachingKeySetClient) allowRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.lastRefresh.IsZero() && now.Sub(c.lastRefresh) < c.minRefresh {
		return false
	}
	c.lastRefresh = now
	return true
}

func (c *CachingKeySetClient) load(ctx context.Context) ([]ExternalKey, error) {
	if keys, ok := c.loadShared(ctx); ok {
		c.local.Set(localKeySetKey, keys, cache.DefaultExpiration)
		return keys, nil
	}

	keys, err := c.upstream.FetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	keys = slices.Clone(keys)
	c.local.Set(localKeySetKey, keys, cache.DefaultExpiration)
	c.storeShared(ctx, keys)
	return keys, nil
}

func (c *CachingKeySetClient) loadShared(ctx context.Context) ([]ExternalKey, bool) {
	if c.shared == nil {
		return nil, false
	}
	raw, err := c.shared.Get(ctx, c.sharedKey)
	if err != nil {
		if !sserr.IsNotFound(err) {
			slog.WarnContext(ctx, "auth: shared key set cache read failed", "error", err)
		}
		return nil, false
	}
	var set KeySet
	if err := json.Unmarshal([]byte(raw), &set); err != nil || len(set.Keys) == 0 {
		slog.WarnContext(ctx, "auth: discarding unreadable shared key set entry", "error", err)
		return nil, false
	}
	return set.Keys, true
}

func (c *CachingKeySetClient) storeShared(ctx context.Context, keys []ExternalKey) {
	if c.shared == nil {
		return
	}
	data, err := json.Marshal(KeySet{Keys: keys})
	if err != nil {
		slog.WarnContext(ctx, "auth: failed to encode key set for shared cache", "error", err)
		return
	}
	if err := c.shared.Set(ctx, c.sharedKey, string(data), c.ttl); err != nil {
		slog.WarnContext(ctx, "auth: shared key set cache write failed", "error", err)
	}
}
