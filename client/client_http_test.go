package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/panyam/cookieauth"
	"github.com/panyam/cookieauth/client"
	clientfs "github.com/panyam/cookieauth/client/stores/fs"
	"github.com/panyam/cookieauth/stores"
)

const testSecret = "client-test-secret-0123456789abcdef"

// mailbox captures the links the server mails out.
type mailbox struct {
	confirm chan string
	reset   chan string
}

func newMailbox() *mailbox {
	return &mailbox{confirm: make(chan string, 4), reset: make(chan string, 4)}
}

func (m *mailbox) SendConfirmAccountMail(ctx context.Context, email, link string) error {
	m.confirm <- link
	return nil
}

func (m *mailbox) SendForgotPasswordMail(ctx context.Context, email, link string) error {
	m.reset <- link
	return nil
}

func tokenFrom(t *testing.T, links chan string) string {
	t.Helper()
	select {
	case link := <-links:
		_, token, ok := strings.Cut(link, "#token=")
		if !ok {
			t.Fatalf("No token in link %q", link)
		}
		return token
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for mail")
	}
	return ""
}

type testServer struct {
	*httptest.Server
	mail   *mailbox
	driver *stores.Driver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	driver := stores.NewDriver(stores.NewMemoryBackend())
	driver.HashCost = bcrypt.MinCost
	mail := newMailbox()

	handler, err := cookieauth.NewHandler(&cookieauth.Options{
		Public: cookieauth.PublicConfig{BaseURL: "http://app.test"},
		Server: cookieauth.ServerConfig{
			TokenSecret:          testSecret,
			Driver:               driver,
			Triggers:             cookieauth.Triggers{Mailer: mail},
			AntiEnumerationDelay: time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	ts := &testServer{Server: httptest.NewServer(handler), mail: mail, driver: driver}
	t.Cleanup(ts.Close)
	t.Cleanup(func() { handler.Shutdown(context.Background()) })
	return ts
}

func newClient(t *testing.T, url string, opts ...client.ClientOption) *client.AuthClient {
	t.Helper()
	c, err := client.NewAuthClient(url, opts...)
	if err != nil {
		t.Fatalf("NewAuthClient: %v", err)
	}
	return c
}

func apiCode(err error) string {
	var apiErr *cookieauth.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func TestClientJourney(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	credPath := filepath.Join(t.TempDir(), "credentials.json")
	creds, err := clientfs.NewFSCredentialStore(credPath, "")
	if err != nil {
		t.Fatal(err)
	}
	c := newClient(t, ts.URL, client.WithCredentialStore(creds))

	state, err := c.TokenContent(ctx)
	if err != nil {
		t.Fatalf("TokenContent: %v", err)
	}
	if state.Value != cookieauth.StateSignedOut {
		t.Fatalf("Expected signedOut, got %s", state.Value)
	}

	if err := c.SignUp(ctx, "Player@Example.com", "hunter22"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	confirmToken := tokenFrom(t, ts.mail.confirm)

	err = c.SignIn(ctx, "player@example.com", "hunter22", false)
	if apiCode(err) != cookieauth.CodeAccountNotConfirmed {
		t.Fatalf("Expected account not confirmed, got %v", err)
	}

	if err := c.ConfirmAccount(ctx, confirmToken); err != nil {
		t.Fatalf("ConfirmAccount: %v", err)
	}
	state, err = c.TokenContent(ctx)
	if err != nil || !state.IsSignedIn() {
		t.Fatalf("Expected signed in after confirming, got %+v, %v", state, err)
	}
	userID := state.UserID()

	cred, err := creds.GetCredential(ts.URL)
	if err != nil || cred == nil {
		t.Fatalf("Expected stored credential, got %v, %v", cred, err)
	}
	if cred.UserID != userID || cred.SessionToken != c.SessionToken() {
		t.Errorf("Unexpected credential %+v", cred)
	}
	if cred.ExpiresAt.IsZero() {
		t.Error("Expected expiry from the token")
	}

	// a fresh client picks the session up from the store
	reopened, err := clientfs.NewFSCredentialStore(credPath, "")
	if err != nil {
		t.Fatal(err)
	}
	again := newClient(t, ts.URL, client.WithCredentialStore(reopened))
	state, err = again.TokenContent(ctx)
	if err != nil || state.UserID() != userID {
		t.Errorf("Expected restored session, got %+v, %v", state, err)
	}

	err = c.ChangePassword(ctx, "wrong", "newpass")
	if apiCode(err) != cookieauth.CodeAuthenticationFailed {
		t.Errorf("Expected authentication failed, got %v", err)
	}
	if err := c.ChangePassword(ctx, "hunter22", "newpass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if c.SessionToken() != "" {
		t.Error("Expected session cleared from jar")
	}
	if cred, _ := creds.GetCredential(ts.URL); cred != nil {
		t.Error("Expected credential removed")
	}
	state, _ = c.TokenContent(ctx)
	if state.IsSignedIn() {
		t.Error("Expected signed out")
	}

	if err := c.SignIn(ctx, "player@example.com", "newpass", true); err != nil {
		t.Fatalf("SignIn with changed password: %v", err)
	}
	if c.SessionToken() == "" {
		t.Error("Expected session in jar")
	}
}

func TestClientPasswordReset(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	if _, err := ts.driver.CreateEmailUser(ctx, "a@example.com", "first"); err != nil {
		t.Fatal(err)
	}
	c := newClient(t, ts.URL)

	if err := c.ForgotPassword(ctx, "a@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	token := tokenFrom(t, ts.mail.reset)

	err := c.ResetPassword(ctx, token+"x", "second")
	if apiCode(err) == "" {
		t.Errorf("Expected API error for tampered token, got %v", err)
	}
	if err := c.ResetPassword(ctx, token, "second"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	state, err := c.TokenContent(ctx)
	if err != nil || !state.IsSignedIn() {
		t.Errorf("Expected signed in after reset, got %+v, %v", state, err)
	}

	// unknown emails look the same
	if err := c.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Errorf("ForgotPassword for unknown email: %v", err)
	}
}

func TestClientResendConfirmation(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newClient(t, ts.URL)
	if err := c.SignUp(ctx, "b@example.com", "secret"); err != nil {
		t.Fatal(err)
	}
	tokenFrom(t, ts.mail.confirm)

	if err := c.ResendConfirmationEmail(ctx, "b@example.com"); err != nil {
		t.Fatalf("ResendConfirmationEmail: %v", err)
	}
	if err := c.ConfirmAccount(ctx, tokenFrom(t, ts.mail.confirm)); err != nil {
		t.Fatalf("ConfirmAccount with resent token: %v", err)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)

	c := newClient(t, ts.URL)
	if err := c.SignIn(ctx, "", "", false); apiCode(err) != cookieauth.CodeMissingEmailOrPassword {
		t.Errorf("Expected missing email or password, got %v", err)
	}
	if err := c.ChangePassword(ctx, "a", "b"); apiCode(err) != cookieauth.CodeUnauthorized {
		t.Errorf("Expected unauthorized, got %v", err)
	}

	wrongPath := newClient(t, ts.URL, client.WithAuthPath("/nope"))
	if _, err := wrongPath.TokenContent(ctx); err == nil || apiCode(err) != "" {
		t.Errorf("Expected a non API error for an empty 404, got %v", err)
	}

	if _, err := client.NewAuthClient("not a url"); err == nil {
		t.Error("Expected invalid server URL error")
	}
}

func TestInterpreterWithClient(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	ts.driver.AutoConfirm = true
	if _, err := ts.driver.CreateEmailUser(ctx, "c@example.com", "secret"); err != nil {
		t.Fatal(err)
	}
	c := newClient(t, ts.URL)
	machine := client.NewInterpreter(c)

	if got := machine.Start(ctx); got.Value != cookieauth.StateSignedOut {
		t.Fatalf("Start() = %s", got.Value)
	}
	err := machine.Perform(ctx, client.ActionSignIn, func(ctx context.Context) error {
		return c.SignIn(ctx, "c@example.com", "secret", false)
	})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if got := machine.State(); got.Value != cookieauth.StateSignedIn || got.Context.TokenData.Provider != cookieauth.ProviderEmail {
		t.Errorf("Expected signedIn by email, got %+v", got)
	}

	err = machine.Perform(ctx, client.ActionSignOut, c.SignOut)
	if err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if got := machine.State(); got.Value != cookieauth.StateSignedOut {
		t.Errorf("Expected signedOut, got %s", got.Value)
	}

	ts.Close()
	machine.Send(ctx, client.Event{Type: client.EventRefresh})
	if got := machine.State(); got.Value != cookieauth.StateSignInError {
		t.Errorf("Expected signInError when the server is gone, got %s", got.Value)
	}
}
