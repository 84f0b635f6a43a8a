package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/panyam/cookieauth"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Sessions verifies tokens.  Required.
	Sessions *cookieauth.SessionResolver

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed signed out.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods
// except publicMethods.  The cookie name is taken from sessions.
func NewInterceptorConfig(sessions *cookieauth.SessionResolver, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        &Config{CookieName: sessions.CookieName},
		Sessions:      sessions,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(sessions *cookieauth.SessionResolver) *InterceptorConfig {
	config := NewInterceptorConfig(sessions)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// authenticate resolves the session into ctx and enforces RequireAuth.
func (c *InterceptorConfig) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	state := cookieauth.SignedOut()
	if token := SessionTokenFromContext(ctx, c.Config); token != "" {
		state = c.Sessions.ResolveToken(token)
	}
	if c.RequireAuth && !c.PublicMethods[fullMethod] && !state.IsSignedIn() {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return cookieauth.ContextWithAuthState(ctx, state), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that resolves the
// session for every call.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authStream overrides the context of a server stream.
type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context {
	return s.ctx
}

// StreamAuthInterceptor returns a gRPC stream interceptor that resolves the
// session once per stream.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}
