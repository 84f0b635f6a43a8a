package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g.
// COOKIEAUTH_STORAGE_KIND for storage.kind.
const EnvPrefix = "COOKIEAUTH"

// defaults also registers every key with viper so that AutomaticEnv applies
// to keys missing from the config file.
var defaults = map[string]any{
	"listen":                          ":8080",
	"base_url":                        "http://localhost:8080",
	"auth_path":                       "/api/auth",
	"token_secret":                    "",
	"cookie_name":                     "",
	"secure":                          true,
	"session_lifetime":                "0s",
	"anti_enumeration_delay":          "0s",
	"redirects.after_confirm_account": "",
	"redirects.after_reset_password":  "",
	"redirects.after_sign_in":         "",
	"redirects.after_sign_out":        "",
	"redirects.after_change_password": "",
	"storage.kind":                    StorageMemory,
	"storage.path":                    "",
	"storage.project_id":              "",
	"storage.namespace":               "",
	"github.client_id":                "",
	"github.client_secret":            "",
	"google.client_id":                "",
	"google.client_secret":            "",
}

// LoaderConfig holds optional file overrides.
type LoaderConfig struct {
	ConfigFile string // YAML, TOML or JSON by extension
	EnvFile    string // defaults to ./.env when present
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load merges, in increasing precedence, defaults, the config file and the
// environment (after loading the .env file), then validates the result.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	// godotenv never overrides variables already set in the environment
	if lc.EnvFile != "" {
		if err := godotenv.Load(lc.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", lc.EnvFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", lc.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report keys the way they are written in config files
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks cfg and lists every offending key.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		// drop the leading "Config."
		field := e.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		messages = append(messages, field+": "+describe(e))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if", "required_with":
		return "is required"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "oneof":
		return "must be one of [" + e.Param() + "]"
	case "http_url":
		return "must be an http(s) URL"
	case "startswith":
		return "must start with " + e.Param()
	default:
		return "failed " + e.Tag() + " validation"
	}
}
