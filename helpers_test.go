package cookieauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ca "github.com/panyam/cookieauth"
)

const testBaseURL = "http://app.test"

type fakeUser struct {
	id       string
	email    string
	password string
	status   ca.AccountStatus
}

// fakeDriver is an in-memory Driver that records the calls made to it.
type fakeDriver struct {
	mu     sync.Mutex
	users  map[string]*fakeUser
	nextID int
	calls  []string

	// err is returned by every call when set
	err error
	// changeErr is returned by ChangeEmailUserPassword when set
	changeErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{users: map[string]*fakeUser{}}
}

func (d *fakeDriver) record(call string) {
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) addUser(email, password string, status ca.AccountStatus) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := fmt.Sprintf("user-%d", d.nextID)
	d.users[id] = &fakeUser{id: id, email: email, password: password, status: status}
	return id
}

func (d *fakeDriver) byEmail(email string) *fakeUser {
	for _, u := range d.users {
		if u.email == email {
			return u
		}
	}
	return nil
}

func (d *fakeDriver) user(id string) *fakeUser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[id]
}

func (d *fakeDriver) AttemptEmailPasswordLogin(ctx context.Context, email, password string) (ca.LoginResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AttemptEmailPasswordLogin")
	if d.err != nil {
		return ca.LoginResult{}, d.err
	}
	u := d.byEmail(email)
	if u == nil {
		return ca.LoginResult{Success: false, Reason: ca.ReasonAuthenticationFailed}, nil
	}
	if u.password != password {
		return ca.LoginResult{Success: false, Reason: ca.ReasonAuthenticationFailed, AccountStatus: u.status}, nil
	}
	return ca.LoginResult{Success: true, UserID: u.id, AccountStatus: u.status}, nil
}

func (d *fakeDriver) CreateEmailUser(ctx context.Context, email, password string) (ca.CreateResult, error) {
	d.mu.Lock()
	d.record("CreateEmailUser")
	if d.err != nil {
		d.mu.Unlock()
		return ca.CreateResult{}, d.err
	}
	if d.byEmail(email) != nil {
		d.mu.Unlock()
		return ca.CreateResult{Success: false, Reason: ca.ReasonInstanceNotUnique}, nil
	}
	d.mu.Unlock()
	id := d.addUser(email, password, ca.AccountUnconfirmed)
	return ca.CreateResult{Success: true, UserID: id}, nil
}

func (d *fakeDriver) UpdateEmailUserPassword(ctx context.Context, userID, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("UpdateEmailUserPassword")
	if d.err != nil {
		return d.err
	}
	u := d.users[userID]
	if u == nil {
		return errors.New("no such user")
	}
	u.password = password
	return nil
}

func (d *fakeDriver) ChangeEmailUserPassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ChangeEmailUserPassword")
	if d.changeErr != nil {
		return d.changeErr
	}
	u := d.users[userID]
	if u == nil {
		return errors.New("no such user")
	}
	if u.password != currentPassword {
		return fmt.Errorf("changing password for %s: %w", userID, ca.ErrAuthenticationFailed)
	}
	u.password = newPassword
	return nil
}

func (d *fakeDriver) GetUserIDByEmail(ctx context.Context, email string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("GetUserIDByEmail")
	if d.err != nil {
		return "", d.err
	}
	if u := d.byEmail(email); u != nil {
		return u.id, nil
	}
	return "", nil
}

func (d *fakeDriver) ConfirmAccount(ctx context.Context, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ConfirmAccount")
	if d.err != nil {
		return false, d.err
	}
	u := d.users[userID]
	if u == nil {
		return false, nil
	}
	u.status = ca.AccountConfirmed
	return true, nil
}

type sentMail struct {
	kind  string
	email string
	link  string
}

// recordingMailer delivers every mail on a channel and can contribute extra
// token claims.
type recordingMailer struct {
	mails   chan sentMail
	extra   map[string]any
	lastReq ca.TokenContentRequest
	mu      sync.Mutex
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{mails: make(chan sentMail, 16)}
}

func (m *recordingMailer) SendConfirmAccountMail(ctx context.Context, email, link string) error {
	m.mails <- sentMail{kind: "confirm", email: email, link: link}
	return nil
}

func (m *recordingMailer) SendForgotPasswordMail(ctx context.Context, email, link string) error {
	m.mails <- sentMail{kind: "forgot", email: email, link: link}
	return nil
}

func (m *recordingMailer) FetchAdditionalTokenContent(ctx context.Context, req ca.TokenContentRequest) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReq = req
	return m.extra, nil
}

func (m *recordingMailer) waitMail(t *testing.T) sentMail {
	t.Helper()
	select {
	case mail := <-m.mails:
		return mail
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail")
		return sentMail{}
	}
}

func (m *recordingMailer) assertNoMail(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case mail := <-m.mails:
		t.Fatalf("unexpected mail: %+v", mail)
	case <-time.After(within):
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOptions(driver ca.Driver, mailer *recordingMailer) *ca.Options {
	return &ca.Options{
		Public: ca.PublicConfig{BaseURL: testBaseURL},
		Server: ca.ServerConfig{
			TokenSecret:          testSecret,
			CookieName:           "session",
			Driver:               driver,
			Triggers:             ca.Triggers{Mailer: mailer},
			AntiEnumerationDelay: 50 * time.Millisecond,
			Logger:               quietLogger(),
		},
	}
}

func newTestHandler(t *testing.T, driver ca.Driver, mailer *recordingMailer) *ca.Handler {
	t.Helper()
	h, err := ca.NewHandler(newTestOptions(driver, mailer))
	require.NoError(t, err)
	return h
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func post(t *testing.T, h http.Handler, route string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, h, http.MethodPost, ca.DefaultAuthPath+"/"+route, body, cookies...)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *ca.APIError    `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "body: %s", rr.Body.String())
	return env
}

// requireOK asserts a 200 {data:{ok:true}} response.
func requireOK(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	require.JSONEq(t, `{"data":{"ok":true}}`, rr.Body.String())
}

// requireError asserts an error envelope with the given status and code.
func requireError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) *ca.APIError {
	t.Helper()
	require.Equal(t, status, rr.Code, "body: %s", rr.Body.String())
	env := decode(t, rr)
	require.NotNil(t, env.Error, "body: %s", rr.Body.String())
	require.Equal(t, code, env.Error.Code)
	return env.Error
}

func responseCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// tokenFromLink extracts the token from a link/#token=... mail link.
func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	_, token, ok := strings.Cut(link, "#token=")
	require.True(t, ok, "link without token: %s", link)
	return token
}

func resolveSession(t *testing.T, h *ca.Handler, cookie *http.Cookie) ca.AuthState {
	t.Helper()
	require.NotNil(t, cookie)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	return h.Sessions().Resolve(req)
}
