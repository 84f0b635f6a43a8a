// Package grpc carries cookieauth sessions into gRPC services through
// request metadata.
package grpc

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/panyam/cookieauth"
)

// Default metadata keys for authentication context.
const (
	// DefaultMetadataKeyToken carries a raw session token.
	DefaultMetadataKeyToken = "x-session-token"

	// MetadataKeyCookie is where grpc-gateway style proxies forward the
	// browser's Cookie header.
	MetadataKeyCookie = "cookie"

	MetadataKeyAuthorization = "authorization"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyToken defaults to "x-session-token".
	MetadataKeyToken string

	// CookieName is the session cookie looked up in forwarded cookies.
	// Defaults to cookieauth.DefaultSessionCookieName.
	CookieName string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyToken: DefaultMetadataKeyToken,
		CookieName:       cookieauth.DefaultSessionCookieName,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyToken == "" {
		c.MetadataKeyToken = DefaultMetadataKeyToken
	}
	if c.CookieName == "" {
		c.CookieName = cookieauth.DefaultSessionCookieName
	}
}

// SessionTokenFromContext finds the session token in the incoming metadata.
// The explicit token key wins over a forwarded cookie, which wins over a
// bearer authorization.
func SessionTokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	if values := md.Get(config.MetadataKeyToken); len(values) > 0 && values[0] != "" {
		return values[0]
	}

	for _, header := range md.Get(MetadataKeyCookie) {
		cookies, err := http.ParseCookie(header)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == config.CookieName && c.Value != "" {
				return c.Value
			}
		}
	}

	for _, value := range md.Get(MetadataKeyAuthorization) {
		scheme, token, ok := strings.Cut(value, " ")
		if ok && strings.EqualFold(scheme, "bearer") && token != "" {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// TokenToOutgoingContext adds a session token to outgoing gRPC metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyToken, token)
}

// UserIDFromContext returns the user resolved by the interceptors, or "".
func UserIDFromContext(ctx context.Context) string {
	return cookieauth.AuthStateFromContext(ctx).UserID()
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return cookieauth.AuthStateFromContext(ctx).IsSignedIn()
}
