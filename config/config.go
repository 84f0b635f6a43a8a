// Package config loads the settings of a cookieauth server binary from a
// YAML file, a .env file and COOKIEAUTH_* environment variables.
package config

import (
	"time"

	"github.com/panyam/cookieauth"
)

// Storage backends a binary can select.
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageGAE    = "gae"
)

type Config struct {
	Listen  string `mapstructure:"listen" validate:"required"`
	BaseURL string `mapstructure:"base_url" validate:"required,http_url"`

	// AuthPath is where the auth routes are mounted.
	AuthPath string `mapstructure:"auth_path" validate:"omitempty,startswith=/"`

	TokenSecret          string        `mapstructure:"token_secret" validate:"required,min=16"`
	CookieName           string        `mapstructure:"cookie_name"`
	Secure               bool          `mapstructure:"secure"`
	SessionLifetime      time.Duration `mapstructure:"session_lifetime" validate:"gte=0"`
	AntiEnumerationDelay time.Duration `mapstructure:"anti_enumeration_delay" validate:"gte=0"`

	Redirects RedirectsConfig `mapstructure:"redirects"`
	Storage   StorageConfig   `mapstructure:"storage"`
	GitHub    ProviderConfig  `mapstructure:"github"`
	Google    ProviderConfig  `mapstructure:"google"`
}

type RedirectsConfig struct {
	AfterConfirmAccount string `mapstructure:"after_confirm_account"`
	AfterResetPassword  string `mapstructure:"after_reset_password"`
	AfterSignIn         string `mapstructure:"after_sign_in"`
	AfterSignOut        string `mapstructure:"after_sign_out"`
	AfterChangePassword string `mapstructure:"after_change_password"`
}

// StorageConfig selects the user store.  Path is used by fs; ProjectID and
// Namespace by gae.
type StorageConfig struct {
	Kind      string `mapstructure:"kind" validate:"oneof=memory fs gae"`
	Path      string `mapstructure:"path" validate:"required_if=Kind fs"`
	ProjectID string `mapstructure:"project_id" validate:"required_if=Kind gae"`
	Namespace string `mapstructure:"namespace"`
}

// ProviderConfig enables an OAuth provider when both fields are set.
type ProviderConfig struct {
	ClientID     string `mapstructure:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `mapstructure:"client_secret" validate:"required_with=ClientID"`
}

func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Public returns the client facing half of the configuration.
func (c *Config) Public() cookieauth.PublicConfig {
	public := cookieauth.PublicConfig{
		BaseURL:  c.BaseURL,
		AuthPath: c.AuthPath,
		Redirects: cookieauth.Redirects{
			AfterConfirmAccount: c.Redirects.AfterConfirmAccount,
			AfterResetPassword:  c.Redirects.AfterResetPassword,
			AfterSignIn:         c.Redirects.AfterSignIn,
			AfterSignOut:        c.Redirects.AfterSignOut,
			AfterChangePassword: c.Redirects.AfterChangePassword,
		},
	}
	public.EnsureDefaults()
	return public
}

// Server returns the server configuration without a driver, triggers or
// identity providers; the binary supplies those.
func (c *Config) Server() cookieauth.ServerConfig {
	return cookieauth.ServerConfig{
		TokenSecret:          c.TokenSecret,
		CookieName:           c.CookieName,
		Secure:               c.Secure,
		SessionLifetime:      c.SessionLifetime,
		AntiEnumerationDelay: c.AntiEnumerationDelay,
	}
}
