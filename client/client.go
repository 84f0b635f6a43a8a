package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/panyam/cookieauth"
)

// AuthClient calls the routes of a cookieauth Handler.  The session lives in
// a cookie jar like it would in a browser, and is mirrored into an optional
// CredentialStore so that it survives restarts.
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	authPath      string
	cookieName    string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithAuthPath sets where the Handler is mounted.  Defaults to /api/auth.
func WithAuthPath(path string) ClientOption {
	return func(c *AuthClient) {
		c.authPath = "/" + strings.Trim(path, "/")
	}
}

// WithCookieName sets the session cookie name the server uses.
func WithCookieName(name string) ClientOption {
	return func(c *AuthClient) {
		c.cookieName = name
	}
}

// WithCredentialStore persists the session between runs.
func WithCredentialStore(store CredentialStore) ClientOption {
	return func(c *AuthClient) {
		c.store = store
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// Its jar is replaced by the client's own.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a client for the server at serverURL.  A session
// found in the credential store is loaded into the jar.
func NewAuthClient(serverURL string, opts ...ClientOption) (*AuthClient, error) {
	// Normalize server URL
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.In("client").With("server_url", serverURL).Errorf("invalid server URL")
	}
	serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &AuthClient{
		serverURL:     serverURL,
		authPath:      cookieauth.DefaultAuthPath,
		cookieName:    cookieauth.DefaultSessionCookieName,
		httpClient:    &http.Client{Jar: jar},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = c.baseTransport

	if c.store != nil {
		cred, err := c.store.GetCredential(serverURL)
		if err != nil {
			return nil, err
		}
		if cred != nil && !cred.IsExpired() {
			c.setJarSession(cred.SessionToken)
		}
	}
	return c, nil
}

// HTTPClient returns the underlying HTTP client.  Requests made with it carry
// the session cookie.
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// SessionToken returns the current session token or "".
func (c *AuthClient) SessionToken() string {
	u, _ := url.Parse(c.serverURL + "/")
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == c.cookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *AuthClient) setJarSession(token string) {
	u, _ := url.Parse(c.serverURL + "/")
	cookie := &http.Cookie{Name: c.cookieName, Value: token, Path: "/"}
	if token == "" {
		cookie.MaxAge = -1
	}
	c.httpClient.Jar.SetCookies(u, []*http.Cookie{cookie})
}

// SignIn logs in with an email and password.  On success the session is kept
// in the jar and saved to the credential store.
func (c *AuthClient) SignIn(ctx context.Context, email, password string, rememberMe bool) error {
	resp, err := c.call(ctx, cookieauth.RouteLogin, map[string]any{
		"email":      email,
		"password":   password,
		"rememberMe": rememberMe,
	}, nil)
	if err != nil {
		return err
	}
	return c.saveSession(resp, email)
}

// SignUp registers an account.  It succeeds whether or not the email was
// already registered.
func (c *AuthClient) SignUp(ctx context.Context, email, password string) error {
	_, err := c.call(ctx, cookieauth.RouteSignup, map[string]any{"email": email, "password": password}, nil)
	return err
}

// SignOut clears the session on the server, in the jar and in the store.
func (c *AuthClient) SignOut(ctx context.Context) error {
	if _, err := c.call(ctx, cookieauth.RouteLogout, map[string]any{}, nil); err != nil {
		return err
	}
	c.setJarSession("")
	return c.forget()
}

// ConfirmAccount redeems the token from a confirmation mail and signs in.
func (c *AuthClient) ConfirmAccount(ctx context.Context, token string) error {
	resp, err := c.call(ctx, cookieauth.RouteConfirmAccount, map[string]any{"token": token}, nil)
	if err != nil {
		return err
	}
	return c.saveSession(resp, "")
}

// ResendConfirmationEmail asks for a new confirmation mail.
func (c *AuthClient) ResendConfirmationEmail(ctx context.Context, email string) error {
	_, err := c.call(ctx, cookieauth.RouteResendConfirmationEmail, map[string]any{"email": email}, nil)
	return err
}

// ForgotPassword asks for a password reset mail.
func (c *AuthClient) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.call(ctx, cookieauth.RouteForgotPassword, map[string]any{"email": email}, nil)
	return err
}

// ResetPassword redeems the token from a reset mail and signs in.
func (c *AuthClient) ResetPassword(ctx context.Context, token, password string) error {
	resp, err := c.call(ctx, cookieauth.RouteResetPassword, map[string]any{"token": token, "password": password}, nil)
	if err != nil {
		return err
	}
	return c.saveSession(resp, "")
}

// ChangePassword requires a session.
func (c *AuthClient) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	_, err := c.call(ctx, cookieauth.RouteChangePassword, map[string]any{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}, nil)
	return err
}

// TokenContent returns the server's view of the current session.
func (c *AuthClient) TokenContent(ctx context.Context) (cookieauth.AuthState, error) {
	var state cookieauth.AuthState
	_, err := c.call(ctx, cookieauth.RouteTokenContent, nil, &state)
	return state, err
}

// call posts body as JSON (or GETs when body is nil) and decodes the data of
// the envelope into out.  Error envelopes come back as *cookieauth.APIError.
func (c *AuthClient) call(ctx context.Context, route cookieauth.Route, body any, out any) (*http.Response, error) {
	errb := oops.In("client").With("route", string(route))
	endpoint := c.serverURL + c.authPath + "/" + string(route)

	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		method = http.MethodPost
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errb.Wrap(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, errb.Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errb.Wrapf(err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errb.Wrap(err)
	}
	var envelope struct {
		Data  json.RawMessage      `json:"data"`
		Error *cookieauth.APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errb.With("status", resp.StatusCode).Errorf("unexpected response: %s", strings.TrimSpace(string(raw)))
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errb.With("status", resp.StatusCode).Errorf("unexpected status %d", resp.StatusCode)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, errb.Wrapf(err, "decoding data")
		}
	}
	return resp, nil
}

// saveSession stores the session cookie set by resp, if any.
func (c *AuthClient) saveSession(resp *http.Response, email string) error {
	if c.store == nil {
		return nil
	}
	var session *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == c.cookieName && cookie.Value != "" {
			session = cookie
		}
	}
	if session == nil {
		return nil
	}

	cred := &ServerCredential{
		SessionToken: session.Value,
		UserEmail:    email,
		CreatedAt:    time.Now(),
	}
	// The token is only decoded for display; the server verifies it.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.Value, claims); err == nil {
		cred.UserID, _ = claims[cookieauth.ClaimUserID].(string)
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			cred.ExpiresAt = exp.Time
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return err
	}
	return c.store.Save()
}

func (c *AuthClient) forget() error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}
