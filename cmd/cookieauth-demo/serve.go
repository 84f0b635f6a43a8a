package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/panyam/cookieauth"
	"github.com/panyam/cookieauth/config"
	"github.com/panyam/cookieauth/oauth2"
	"github.com/panyam/cookieauth/stores"
	"github.com/panyam/cookieauth/stores/fs"
	"github.com/panyam/cookieauth/stores/gae"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var logFormat string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(logFormat); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format (json or text)")
	return cmd
}

// setupLogging configures the default slog logger.
func setupLogging(format string) error {
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	case "text":
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		return fmt.Errorf("invalid log format %q: must be 'json' or 'text'", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// openDriver builds the user store selected by cfg.  The returned func
// releases it.
func openDriver(ctx context.Context, cfg *config.Config) (*stores.Driver, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage.Kind {
	case config.StorageFS:
		return fs.NewDriver(cfg.Storage.Path), noop, nil
	case config.StorageGAE:
		client, err := datastore.NewClient(ctx, cfg.Storage.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to datastore: %w", err)
		}
		return gae.NewDriver(client, cfg.Storage.Namespace), client.Close, nil
	default:
		slog.Warn("using in-memory user store; users are lost on restart")
		return stores.NewDriver(stores.NewMemoryBackend()), noop, nil
	}
}

func identityProviders(cfg *config.Config, driver *stores.Driver) map[string]*cookieauth.IdentityProvider {
	out := map[string]*cookieauth.IdentityProvider{}
	if cfg.GitHub.Enabled() {
		out[oauth2.GitHubProvider.Key] = oauth2.GitHub(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, driver)
	}
	if cfg.Google.Enabled() {
		out[oauth2.GoogleProvider.Key] = oauth2.Google(cfg.Google.ClientID, cfg.Google.ClientSecret, driver)
	}
	return out
}

func enabledProviders(cfg *config.Config) []string {
	var out []string
	if cfg.GitHub.Enabled() {
		out = append(out, oauth2.GitHubProvider.Key)
	}
	if cfg.Google.Enabled() {
		out = append(out, oauth2.GoogleProvider.Key)
	}
	return out
}

// app is the demo application: the auth handler plus a home page.
type app struct {
	auth   *cookieauth.Handler
	router *mux.Router
}

func newApp(cfg *config.Config, driver *stores.Driver) (*app, error) {
	server := cfg.Server()
	server.Driver = driver
	server.IdentityProviders = identityProviders(cfg, driver)
	server.Logger = slog.Default()

	auth, err := cookieauth.NewHandler(&cookieauth.Options{Public: cfg.Public(), Server: server})
	if err != nil {
		return nil, err
	}

	public := auth.PublicConfig()
	router := mux.NewRouter()
	router.PathPrefix(public.AuthPath + "/").Handler(auth)

	middleware := public.LoginRedirect(auth.Sessions(), "/")
	router.Handle("/", middleware.ExtractUser(homePage(public)))
	router.Handle("/me", middleware.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "signed in as %s\n", cookieauth.AuthStateFromContext(r.Context()).UserID())
	})))
	return &app{auth: auth, router: router}, nil
}

var homeTemplate = template.Must(template.New("home").Parse(`<!doctype html>
<title>cookieauth demo</title>
{{if .State.IsSignedIn}}
<p>Signed in as {{.State.UserID}} ({{.State.Context.TokenData.Provider}})</p>
<form method="post" action="{{.Public.AuthPath}}/logout"><button>Sign out</button></form>
{{else}}
<p>Signed out.</p>
<form method="post" action="{{.Public.AuthPath}}/login">
  <input name="email" type="email" placeholder="email">
  <input name="password" type="password" placeholder="password">
  <label><input name="rememberMe" type="checkbox"> remember me</label>
  <button>Sign in</button>
</form>
<form method="post" action="{{.Public.AuthPath}}/signup">
  <input name="email" type="email" placeholder="email">
  <input name="password" type="password" placeholder="password">
  <button>Sign up</button>
</form>
{{range $key, $idp := .Public.IdentityProviders}}
<p><a href="{{$.Public.AuthPath}}/oauth/{{$key}}/authorize">Sign in with {{$idp.Name}}</a></p>
{{end}}
{{end}}
`))

func homePage(public cookieauth.PublicConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := homeTemplate.Execute(w, map[string]any{
			"Public": public,
			"State":  cookieauth.AuthStateFromContext(r.Context()),
		})
		if err != nil {
			slog.Error("rendering home page", "err", err)
		}
	})
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	driver, closeDriver, err := openDriver(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDriver(); err != nil {
			slog.Warn("error closing user store", "err", err)
		}
	}()

	a, err := newApp(cfg, driver)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	slog.Info("server ready", "addr", cfg.Listen, "base_url", cfg.BaseURL, "storage", cfg.Storage.Kind)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping http server", "err", err)
	}
	// let queued mails go out
	if err := a.auth.Shutdown(shutdownCtx); err != nil {
		slog.Warn("detached tasks did not finish", "err", err)
	}
	slog.Info("shutdown complete")
	return nil
}
