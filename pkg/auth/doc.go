// Package auth is the authentication core of the identity service. It turns a
// token issued by a third-party wallet identity provider into a first-party
// session and authenticates every later request from that session.
//
// # Login
//
// A login request carries the provider's token. [ExternalTokenVerifier]
// checks it against the provider's published key set:
//
//	keys, _ := auth.NewHTTPKeySetClient(auth.DefaultJWKSURL)
//	verifier := auth.NewExternalTokenVerifier(auth.NewCachingKeySetClient(keys, 10*time.Minute))
//	claims, err := verifier.Verify(ctx, bearer)
//
// The key set is fetched by a [KeySetClient]; each published elliptic-curve
// key is rebuilt from its coordinates by [ToPublicKey]. Verification runs
// structure, key lookup, key conversion, signature and expiry checks in that
// order and fails with CodeTokenInvalid or CodeTokenExpired.
//
// Once the caller's user record is resolved, [SessionIssuer] mints an HS256
// session token that the HTTP layer hands back in the AUTH-TOKEN cookie.
//
// # Requests
//
// [AuthenticationFilter] reads the AUTH-TOKEN cookie, validates it with a
// [SessionValidator] and stores an [IdentityContext] in the request context.
// Expired or invalid sessions leave the request unauthenticated; the
// decision to reject belongs to [RequireAuthenticated] and [RequireRole].
// Any other validator failure is a server fault and is answered with 500.
//
// The same rules are available to gRPC services through
// [UnaryServerInterceptor] and [StreamServerInterceptor].
//
// # Logging
//
// Rejections are logged with log/slog and never include a full token; only
// the first 20 characters (see [TokenPrefix]) are recorded.
package auth
