package cookieauth

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	DefaultAuthPath             = "/api/auth"
	DefaultAntiEnumerationDelay = 200 * time.Millisecond
)

// Redirects are the app paths a client navigates to after each flow.
type Redirects struct {
	AfterConfirmAccount string `json:"afterConfirmAccount"`
	AfterResetPassword  string `json:"afterResetPassword"`
	AfterSignIn         string `json:"afterSignIn"`
	AfterSignOut        string `json:"afterSignOut"`
	AfterChangePassword string `json:"afterChangePassword"`
}

type PublicIdentityProvider struct {
	Name string `json:"name"`
}

// PublicConfig is safe to share with clients.
type PublicConfig struct {
	// BaseURL of the application, used to build mail links and OAuth
	// redirect URIs.  No trailing slash.
	BaseURL string `json:"baseUrl"`

	// AuthPath is where the Handler is mounted.  Defaults to /api/auth.
	AuthPath string `json:"authPath"`

	// IdentityProviders lists the OAuth providers by key for display.
	IdentityProviders map[string]PublicIdentityProvider `json:"identityProviders"`

	Redirects Redirects `json:"redirects"`
}

func (p *PublicConfig) EnsureDefaults() *PublicConfig {
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if p.AuthPath == "" {
		p.AuthPath = DefaultAuthPath
	}
	p.AuthPath = "/" + strings.Trim(p.AuthPath, "/")
	for _, r := range []*string{
		&p.Redirects.AfterConfirmAccount,
		&p.Redirects.AfterResetPassword,
		&p.Redirects.AfterSignIn,
		&p.Redirects.AfterSignOut,
		&p.Redirects.AfterChangePassword,
	} {
		if *r == "" {
			*r = "/"
		}
	}
	return p
}

// ServerConfig holds everything that must stay on the server.
type ServerConfig struct {
	// TokenSecret signs every token.  Falls back to COOKIEAUTH_TOKEN_SECRET.
	// Rotating it signs every user out.
	TokenSecret string

	// CookieName of the session cookie
	CookieName string

	// Secure marks cookies https-only.  Leave off only for local development.
	Secure bool

	// IdentityProviders are the OAuth providers keyed by the name used in
	// /oauth/<provider>/... paths.
	IdentityProviders map[string]*IdentityProvider

	Triggers Triggers

	Driver Driver

	SessionLifetime      time.Duration
	ConfirmTokenLifetime time.Duration
	ResetTokenLifetime   time.Duration

	// AntiEnumerationDelay is the minimum duration of signup and
	// forgot-password so that both outcomes take the same time.
	AntiEnumerationDelay time.Duration

	Logger *slog.Logger
}

func (s *ServerConfig) EnsureDefaults() *ServerConfig {
	if s.TokenSecret == "" {
		s.TokenSecret = strings.TrimSpace(os.Getenv("COOKIEAUTH_TOKEN_SECRET"))
	}
	if s.CookieName == "" {
		s.CookieName = DefaultSessionCookieName
	}
	if s.SessionLifetime <= 0 {
		s.SessionLifetime = SessionTokenLifetime
	}
	if s.ConfirmTokenLifetime <= 0 {
		s.ConfirmTokenLifetime = TokenExpiryConfirmAccount
	}
	if s.ResetTokenLifetime <= 0 {
		s.ResetTokenLifetime = TokenExpiryResetPassword
	}
	if s.AntiEnumerationDelay <= 0 {
		s.AntiEnumerationDelay = DefaultAntiEnumerationDelay
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	s.Triggers = s.Triggers.withDefaults(s.Logger)
	return s
}

// PublicIdentityProviders derives the display list for PublicConfig.
func (s *ServerConfig) PublicIdentityProviders() map[string]PublicIdentityProvider {
	out := make(map[string]PublicIdentityProvider, len(s.IdentityProviders))
	for key, idp := range s.IdentityProviders {
		name := key
		if idp != nil && idp.Name != "" {
			name = idp.Name
		}
		out[key] = PublicIdentityProvider{Name: name}
	}
	return out
}
