package cookieauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
)

// OAuth methods, the last segment of /oauth/<provider>/<method>
const (
	MethodAuthorize   = "authorize"
	MethodIDPResponse = "idpresponse"
)

// UpsertUserFunc maps a provider token to a local user, creating it if
// needed, and returns the user id.
type UpsertUserFunc func(ctx context.Context, token *oauth2.Token) (string, error)

// IdentityProvider configures one OAuth2 provider.
type IdentityProvider struct {
	// Name is shown to users.  Defaults to the provider key.
	Name string

	// Config holds the client credentials, endpoint and scopes.  RedirectURL
	// is ignored and derived from PublicConfig instead.
	Config oauth2.Config

	AuthCodeOptions []oauth2.AuthCodeOption

	UpsertUser UpsertUserFunc

	// HTTPClient is used for the code exchange.  Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// NewOAuthHandler serves /oauth/<provider>/authorize and
// /oauth/<provider>/idpresponse.
func NewOAuthHandler(o *Options) (http.Handler, error) {
	e, err := o.build(false)
	if err != nil {
		return nil, err
	}
	for key, idp := range e.server.IdentityProviders {
		if idp == nil || idp.UpsertUser == nil {
			return nil, fmt.Errorf("cookieauth: identity provider %q has no UpsertUser", key)
		}
	}
	return http.HandlerFunc(e.oauth), nil
}

func (e *handlerEnv) oauth(w http.ResponseWriter, r *http.Request) {
	providerKey, method := oauthParams(r)
	if providerKey == "" || method == "" {
		writeError(w, http.StatusOK, CodeMissingProviderOrMethod, "Provide an identity_provider and a method.")
		return
	}
	idp, ok := e.server.IdentityProviders[providerKey]
	if !ok || idp == nil {
		writeError(w, http.StatusOK, CodeUnknownProvider, "")
		return
	}

	config := idp.Config
	config.RedirectURL = e.public.BaseURL + e.public.AuthPath + "/oauth/" + providerKey + "/" + MethodIDPResponse

	switch method {
	case MethodAuthorize:
		e.oauthAuthorize(w, r, &config, idp)
	case MethodIDPResponse:
		e.oauthIDPResponse(w, r, providerKey, &config, idp)
	default:
		writeError(w, http.StatusOK, CodeUnknownMethod, "")
	}
}

func (e *handlerEnv) oauthAuthorize(w http.ResponseWriter, r *http.Request, config *oauth2.Config, idp *IdentityProvider) {
	state, err := generateOAuthState()
	if err != nil {
		e.unexpected(w, RouteOAuth, err)
		return
	}
	setCookies(w, e.cookies.OAuthStateCookie(state))
	w.Header().Set("Cache-Control", "no-cache")
	http.Redirect(w, r, config.AuthCodeURL(state, idp.AuthCodeOptions...), http.StatusFound)
}

func (e *handlerEnv) oauthIDPResponse(w http.ResponseWriter, r *http.Request, providerKey string, config *oauth2.Config, idp *IdentityProvider) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(OAuthStateCookieName)
	if err != nil || cookie.Value == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeError(w, http.StatusInternalServerError, CodeOpenAuthenticationFailed, "Open Authentication failed")
		return
	}

	// The state is spent from here on, whatever the outcome.
	setCookies(w, e.cookies.ClearOAuthStateCookie())

	ctx := driverContext(r)
	if err := e.completeOAuth(ctx, w, providerKey, config, idp, r.URL.Query().Get("code")); err != nil {
		e.logger.Warn("oauth sign in failed", "provider", providerKey, "err", err)
		writeError(w, http.StatusOK, CodeAuthenticationFailed, "Authentication failed")
		return
	}

	target := e.public.BaseURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (e *handlerEnv) completeOAuth(ctx context.Context, w http.ResponseWriter, providerKey string, config *oauth2.Config, idp *IdentityProvider, code string) error {
	if code == "" {
		return errors.New("provider returned no code")
	}
	if idp.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, idp.HTTPClient)
	}
	token, err := config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging code: %w", err)
	}
	userID, err := idp.UpsertUser(ctx, token)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	if userID == "" {
		return errors.New("upsert returned no user")
	}
	return e.signIn(ctx, w, signIn{
		userID:     userID,
		provider:   providerKey,
		status:     AccountConfirmed,
		oauthToken: token,
	})
}

// oauthParams reads the provider and method from the route variables, or
// from the path segments after "oauth" when served outside the Handler.
func oauthParams(r *http.Request) (provider, method string) {
	if vars := mux.Vars(r); vars != nil {
		return vars["provider"], vars["method"]
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i, p := range parts {
		if p != string(RouteOAuth) {
			continue
		}
		rest := parts[i+1:]
		if len(rest) > 0 {
			provider = rest[0]
		}
		if len(rest) > 1 {
			method = rest[1]
		}
		return provider, method
	}
	return "", ""
}

// generateOAuthState returns 32 hex characters of randomness.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
