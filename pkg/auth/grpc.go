package auth

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// cookieMetadataKey is the metadata key grpc-gateway and browsers' gRPC-web
// proxies forward the Cookie header under.
const cookieMetadataKey = "cookie"

// UnaryServerInterceptor authenticates unary calls the way
// [AuthenticationFilter.Middleware] authenticates HTTP requests.
func (f *AuthenticationFilter) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if f.Skips(info.FullMethod) {
			f.observe(OutcomeSkipped)
			return handler(ctx, req)
		}
		ctx, err := f.authenticateIncoming(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor authenticates streaming calls.
func (f *AuthenticationFilter) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if f.Skips(info.FullMethod) {
			f.observe(OutcomeSkipped)
			return handler(srv, ss)
		}
		ctx, err := f.authenticateIncoming(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

func (f *AuthenticationFilter) authenticateIncoming(ctx context.Context) (context.Context, error) {
	identity, outcome, err := f.Authenticate(ctx, sessionTokenFromMetadata(ctx))
	f.observe(outcome)
	if err != nil {
		return ctx, status.Error(codes.Internal, "session validation failed")
	}
	if identity != nil {
		ctx = ContextWithIdentity(ctx, identity)
	}
	return ctx, nil
}

// sessionTokenFromMetadata finds AUTH-TOKEN in the incoming cookie metadata.
func sessionTokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, header := range md.Get(cookieMetadataKey) {
		cookies, err := http.ParseCookie(header)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == SessionCookieName {
				return c.Value
			}
		}
	}
	return ""
}

// identityStream overrides Context so handlers see the identity.
type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }
