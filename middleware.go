package cookieauth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Middleware guards application pages (as opposed to JSON APIs, which use
// SessionResolver.EnsureSignedIn) by redirecting signed out browsers to a
// sign in page.
type Middleware struct {
	Sessions *SessionResolver

	// CallbackURLParam carries the originally requested path to the sign in
	// page.  Defaults to callbackURL.
	CallbackURLParam string

	// GetRedirURL returns the sign in page for a request.  When it is nil or
	// returns "", signed out requests get a plain 401.
	GetRedirURL func(r *http.Request) string
}

/**
 * Ensures that config values have reasonable defaults.
 */
func (a *Middleware) EnsureReasonableDefaults() {
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
}

// LoginRedirect builds a Middleware that sends signed out users to
// BaseURL + loginPath.
func (p *PublicConfig) LoginRedirect(sessions *SessionResolver, loginPath string) *Middleware {
	target := p.BaseURL + loginPath
	return &Middleware{
		Sessions:    sessions,
		GetRedirURL: func(*http.Request) string { return target },
	}
}

// ExtractUser resolves the session without enforcing it.
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return a.Sessions.ExtractAuthState(next)
}

func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := a.Sessions.Resolve(r)
		if state.IsSignedIn() {
			next.ServeHTTP(w, r.WithContext(ContextWithAuthState(r.Context(), state)))
			return
		}

		redirURL := ""
		if a.GetRedirURL != nil {
			redirURL = a.GetRedirURL(r)
		}
		if redirURL == "" {
			http.Error(w, "Login Failed", http.StatusUnauthorized)
			return
		}
		original := r.URL.Path
		if r.URL.RawQuery != "" {
			original += "?" + r.URL.RawQuery
		}
		encoded := strings.ReplaceAll(url.QueryEscape(original), "+", "%20")
		http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirURL, a.CallbackURLParam, encoded), http.StatusFound)
	})
}
