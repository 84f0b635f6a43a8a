package cookieauth_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ca "github.com/panyam/cookieauth"
)

func TestLoginValidation(t *testing.T) {
	h := newTestHandler(t, newFakeDriver(), newRecordingMailer())

	tests := []struct {
		name string
		body any
		code string
	}{
		{"empty body", nil, ca.CodeInvalidEmail},
		{"numeric email", map[string]any{"email": 5, "password": "pw"}, ca.CodeInvalidEmail},
		{"missing password", map[string]any{"email": "a@b.c"}, ca.CodeInvalidPassword},
		{"blank email", map[string]any{"email": "  ", "password": "pw"}, ca.CodeMissingEmailOrPassword},
		{"blank password", map[string]any{"email": "a@b.c", "password": " "}, ca.CodeMissingEmailOrPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, h, "login", tt.body)
			requireError(t, rr, http.StatusOK, tt.code)
			assert.Nil(t, responseCookie(rr, "session"))
		})
	}
}

func TestLogin(t *testing.T) {
	driver := newFakeDriver()
	mailer := newRecordingMailer()
	mailer.extra = map[string]any{"plan": "pro"}
	confirmed := driver.addUser("jane@example.com", "secret", ca.AccountConfirmed)
	driver.addUser("new@example.com", "secret", ca.AccountUnconfirmed)
	h := newTestHandler(t, driver, mailer)

	t.Run("wrong password", func(t *testing.T) {
		rr := post(t, h, "login", map[string]any{"email": "jane@example.com", "password": "nope"})
		requireError(t, rr, http.StatusOK, ca.CodeAuthenticationFailed)
		assert.Nil(t, responseCookie(rr, "session"))
	})

	t.Run("unconfirmed account", func(t *testing.T) {
		for _, pw := range []string{"secret", "nope"} {
			rr := post(t, h, "login", map[string]any{"email": "new@example.com", "password": pw})
			requireError(t, rr, http.StatusOK, ca.CodeAccountNotConfirmed)
			assert.Nil(t, responseCookie(rr, "session"))
		}
	})

	t.Run("success", func(t *testing.T) {
		rr := post(t, h, "login", map[string]any{"email": " Jane@Example.com ", "password": "secret"})
		requireOK(t, rr)

		session := responseCookie(rr, "session")
		state := resolveSession(t, h, session)
		require.True(t, state.IsSignedIn())
		assert.Equal(t, confirmed, state.UserID())
		assert.Equal(t, ca.ProviderEmail, state.Context.TokenData.Provider)
		assert.Equal(t, "pro", state.Context.TokenData.Extra["plan"])
		assert.Zero(t, session.MaxAge)

		sync := responseCookie(rr, ca.SyncCookieName)
		require.NotNil(t, sync)
		assert.Equal(t, "login", sync.Value)
	})

	t.Run("remember me", func(t *testing.T) {
		rr := post(t, h, "login", map[string]any{"email": "jane@example.com", "password": "secret", "rememberMe": true})
		requireOK(t, rr)
		assert.Equal(t, int((ca.SessionTokenLifetime - 30*time.Second).Seconds()), responseCookie(rr, "session").MaxAge)
	})

	t.Run("driver failure", func(t *testing.T) {
		driver.err = errors.New("database down")
		defer func() { driver.err = nil }()
		rr := post(t, h, "login", map[string]any{"email": "jane@example.com", "password": "secret"})
		apiErr := requireError(t, rr, http.StatusInternalServerError, ca.CodeUnexpectedError)
		assert.Contains(t, apiErr.Message, "database down")
	})
}

func TestLoginForm(t *testing.T) {
	driver := newFakeDriver()
	driver.addUser("jane@example.com", "secret", ca.AccountConfirmed)
	h := newTestHandler(t, driver, newRecordingMailer())

	form := url.Values{"email": {"jane@example.com"}, "password": {"secret"}, "rememberMe": {"on"}}
	req := httptest.NewRequest(http.MethodPost, ca.DefaultAuthPath+"/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	requireOK(t, rr)
	assert.Positive(t, responseCookie(rr, "session").MaxAge)
}

func TestSignup(t *testing.T) {
	driver := newFakeDriver()
	mailer := newRecordingMailer()
	h := newTestHandler(t, driver, mailer)

	rr := post(t, h, "signup", map[string]any{"email": " New@Example.com", "password": " pw "})
	requireOK(t, rr)
	assert.Nil(t, responseCookie(rr, "session"), "signup does not sign in")

	mail := mailer.waitMail(t)
	assert.Equal(t, "confirm", mail.kind)
	assert.Equal(t, "new@example.com", mail.email)
	assert.True(t, strings.HasPrefix(mail.link, testBaseURL+"/confirm-account#token="), mail.link)

	id, err := driver.GetUserIDByEmail(t.Context(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "pw", driver.user(id).password)

	// a duplicate looks exactly like a success and sends nothing
	rr = post(t, h, "signup", map[string]any{"email": "new@example.com", "password": "other"})
	requireOK(t, rr)
	mailer.assertNoMail(t, 100*time.Millisecond)
}

func TestSignupTiming(t *testing.T) {
	driver := newFakeDriver()
	driver.addUser("taken@example.com", "pw", ca.AccountConfirmed)
	h := newTestHandler(t, driver, newRecordingMailer())

	timed := func(email string) time.Duration {
		start := time.Now()
		requireOK(t, post(t, h, "signup", map[string]any{"email": email, "password": "pw"}))
		return time.Since(start)
	}
	existing := timed("taken@example.com")
	fresh := timed("fresh@example.com")

	// both wait out the 50ms delay; the fake driver itself is instant
	assert.GreaterOrEqual(t, existing, 50*time.Millisecond)
	assert.GreaterOrEqual(t, fresh, 50*time.Millisecond)
	diff := existing - fresh
	if diff < 0 {
		diff = -diff
	}
	assert.Less(t, diff, 40*time.Millisecond)
}

func TestSignupDriverError(t *testing.T) {
	driver := newFakeDriver()
	driver.err = errors.New("boom")
	h := newTestHandler(t, driver, newRecordingMailer())

	rr := post(t, h, "signup", map[string]any{"email": "a@b.c", "password": "pw"})
	requireError(t, rr, http.StatusInternalServerError, ca.CodeUnexpectedError)
}

func TestConfirmAccount(t *testing.T) {
	driver := newFakeDriver()
	mailer := newRecordingMailer()
	h := newTestHandler(t, driver, mailer)

	requireOK(t, post(t, h, "signup", map[string]any{"email": "c@example.com", "password": "pw"}))
	token := tokenFromLink(t, mailer.waitMail(t).link)

	t.Run("missing token", func(t *testing.T) {
		requireError(t, post(t, h, "confirm-account", map[string]any{}), http.StatusInternalServerError, ca.CodeTokenMissing)
		requireError(t, post(t, h, "confirm-account", map[string]any{"token": ""}), http.StatusInternalServerError, ca.CodeTokenMissing)
	})

	t.Run("garbage token", func(t *testing.T) {
		requireError(t, post(t, h, "confirm-account", map[string]any{"token": "garbage"}), http.StatusInternalServerError, ca.CodeUnexpectedError)
	})

	t.Run("unknown user", func(t *testing.T) {
		codec, err := ca.NewTokenCodec(testSecret)
		require.NoError(t, err)
		ghost, err := codec.SignPurpose("ghost", ca.PurposeConfirmAccount, time.Hour)
		require.NoError(t, err)
		requireError(t, post(t, h, "confirm-account", map[string]any{"token": ghost}), http.StatusOK, ca.CodeNoUserOrInvalidState)
	})

	t.Run("success signs in", func(t *testing.T) {
		rr := post(t, h, "confirm-account", map[string]any{"token": token})
		requireOK(t, rr)
		state := resolveSession(t, h, responseCookie(rr, "session"))
		require.True(t, state.IsSignedIn())
		assert.Equal(t, ca.AccountConfirmed, state.Context.TokenData.AccountStatus)
		assert.Equal(t, ca.ProviderEmail, state.Context.TokenData.Provider)

		requireOK(t, post(t, h, "login", map[string]any{"email": "c@example.com", "password": "pw"}))
	})
}

func TestForgotPassword(t *testing.T) {
	driver := newFakeDriver()
	mailer := newRecordingMailer()
	driver.addUser("known@example.com", "pw", ca.AccountConfirmed)
	h := newTestHandler(t, driver, mailer)

	t.Run("validation", func(t *testing.T) {
		requireError(t, post(t, h, "forgot-password", map[string]any{"email": 1}), http.StatusOK, ca.CodeInvalidEmail)
		requireError(t, post(t, h, "forgot-password", map[string]any{"email": " "}), http.StatusOK, ca.CodeMissingEmail)
	})

	t.Run("unknown email", func(t *testing.T) {
		requireOK(t, post(t, h, "forgot-password", map[string]any{"email": "nobody@example.com"}))
		mailer.assertNoMail(t, 100*time.Millisecond)
	})

	t.Run("known email", func(t *testing.T) {
		requireOK(t, post(t, h, "forgot-password", map[string]any{"email": "known@example.com"}))
		mail := mailer.waitMail(t)
		assert.Equal(t, "forgot", mail.kind)
		assert.Equal(t, "known@example.com", mail.email)
		assert.True(t, strings.HasPrefix(mail.link, testBaseURL+"/reset-password#token="), mail.link)
	})
}

func TestResetPassword(t *testing.T) {
	driver := newFakeDriver()
	mailer := newRecordingMailer()
	userID := driver.addUser("known@example.com", "old", ca.AccountConfirmed)
	h := newTestHandler(t, driver, mailer)
	codec, err := ca.NewTokenCodec(testSecret)
	require.NoError(t, err)

	t.Run("validation", func(t *testing.T) {
		requireError(t, post(t, h, "reset-password", map[string]any{"password": "x"}), http.StatusOK, ca.CodeInvalidToken)
		requireError(t, post(t, h, "reset-password", map[string]any{"token": "t"}), http.StatusOK, ca.CodeInvalidPassword)
		requireError(t, post(t, h, "reset-password", map[string]any{"token": "", "password": "x"}), http.StatusOK, ca.CodeMissingToken)
		requireError(t, post(t, h, "reset-password", map[string]any{"token": "t", "password": "  "}), http.StatusOK, ca.CodeMissingPassword)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := codec.SignPurpose(userID, ca.PurposeResetPassword, -time.Minute)
		require.NoError(t, err)
		requireError(t, post(t, h, "reset-password", map[string]any{"token": expired, "password": "new"}), http.StatusOK, ca.CodeJWTExpired)
	})

	t.Run("invalid", func(t *testing.T) {
		requireError(t, post(t, h, "reset-password", map[string]any{"token": "garbage", "password": "new"}), http.StatusInternalServerError, ca.CodeUnexpectedError)

		confirmToken, err := codec.SignPurpose(userID, ca.PurposeConfirmAccount, time.Hour)
		require.NoError(t, err)
		requireError(t, post(t, h, "reset-password", map[string]any{"token": confirmToken, "password": "new"}), http.StatusInternalServerError, ca.CodeUnexpectedError)
		assert.Equal(t, "old", driver.user(userID).password)
	})

	t.Run("round trip", func(t *testing.T) {
		requireOK(t, post(t, h, "forgot-password", map[string]any{"email": "known@example.com"}))
		token := tokenFromLink(t, mailer.waitMail(t).link)

		rr := post(t, h, "reset-password", map[string]any{"token": token, "password": " new "})
		requireOK(t, rr)
		assert.Equal(t, "new", driver.user(userID).password)

		state := resolveSession(t, h, responseCookie(rr, "session"))
		require.True(t, state.IsSignedIn())
		assert.Equal(t, userID, state.UserID())
	})
}

func TestChangePassword(t *testing.T) {
	driver := newFakeDriver()
	driver.addUser("jane@example.com", "old", ca.AccountConfirmed)
	h := newTestHandler(t, driver, newRecordingMailer())

	t.Run("requires session", func(t *testing.T) {
		rr := post(t, h, "change-password", map[string]any{"currentPassword": "old", "newPassword": "new"})
		requireError(t, rr, http.StatusOK, ca.CodeUnauthorized)
		assert.NotContains(t, driver.Calls(), "ChangeEmailUserPassword")
	})

	login := post(t, h, "login", map[string]any{"email": "jane@example.com", "password": "old"})
	requireOK(t, login)
	session := responseCookie(login, "session")

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			body map[string]any
			code string
		}{
			{map[string]any{"newPassword": "x"}, ca.CodeInvalidCurrentPassword},
			{map[string]any{"currentPassword": "x"}, ca.CodeInvalidNewPassword},
			{map[string]any{"currentPassword": " ", "newPassword": "x"}, ca.CodeMissingCurrentPassword},
			{map[string]any{"currentPassword": "x", "newPassword": ""}, ca.CodeMissingNewPassword},
		}
		for _, tt := range tests {
			requireError(t, post(t, h, "change-password", tt.body, session), http.StatusOK, tt.code)
		}
	})

	t.Run("wrong current password", func(t *testing.T) {
		rr := post(t, h, "change-password", map[string]any{"currentPassword": "wrong", "newPassword": "new"}, session)
		requireError(t, rr, http.StatusOK, ca.CodeAuthenticationFailed)
	})

	t.Run("expired credential", func(t *testing.T) {
		driver.changeErr = fmt.Errorf("driver session: %w", ca.ErrTokenExpired)
		defer func() { driver.changeErr = nil }()
		rr := post(t, h, "change-password", map[string]any{"currentPassword": "old", "newPassword": "new"}, session)
		requireError(t, rr, http.StatusOK, ca.CodeJWTExpired)
	})

	t.Run("other driver error", func(t *testing.T) {
		driver.changeErr = errors.New("disk full")
		defer func() { driver.changeErr = nil }()
		rr := post(t, h, "change-password", map[string]any{"currentPassword": "old", "newPassword": "new"}, session)
		requireError(t, rr, http.StatusInternalServerError, ca.CodeUnexpectedError)
	})

	t.Run("success", func(t *testing.T) {
		rr := post(t, h, "change-password", map[string]any{"currentPassword": " old", "newPassword": "new "}, session)
		requireOK(t, rr)
		assert.Nil(t, responseCookie(rr, "session"), "no cookie is reissued")
		requireOK(t, post(t, h, "login", map[string]any{"email": "jane@example.com", "password": "new"}))
	})
}

func TestResendConfirmationEmail(t *testing.T) {
	driver := newFakeDriver()
	mailer := newRecordingMailer()
	driver.addUser("pending@example.com", "pw", ca.AccountUnconfirmed)
	h := newTestHandler(t, driver, mailer)

	requireError(t, post(t, h, "resend-confirmation-email", map[string]any{}), http.StatusOK, ca.CodeInvalidEmail)
	requireError(t, post(t, h, "resend-confirmation-email", map[string]any{"email": ""}), http.StatusOK, ca.CodeMissingEmail)

	requireOK(t, post(t, h, "resend-confirmation-email", map[string]any{"email": "nobody@example.com"}))
	mailer.assertNoMail(t, 50*time.Millisecond)

	requireOK(t, post(t, h, "resend-confirmation-email", map[string]any{"email": " Pending@example.com"}))
	mail := mailer.waitMail(t)
	assert.Equal(t, "confirm", mail.kind)
	assert.Equal(t, "pending@example.com", mail.email)

	rr := post(t, h, "confirm-account", map[string]any{"token": tokenFromLink(t, mail.link)})
	requireOK(t, rr)
}

func TestLogout(t *testing.T) {
	h := newTestHandler(t, newFakeDriver(), newRecordingMailer())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rr := doJSON(t, h, method, ca.DefaultAuthPath+"/logout", nil)
		requireOK(t, rr)
		assert.Contains(t, rr.Header().Get("Set-Cookie"), "session=;")
		assert.Contains(t, rr.Header().Get("Set-Cookie"), "; Max-Age=-1;")
		cleared := responseCookie(rr, "session")
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)
		assert.Equal(t, -1, cleared.MaxAge)
		assert.True(t, cleared.HttpOnly)
	}
}

func TestTokenContent(t *testing.T) {
	driver := newFakeDriver()
	driver.addUser("jane@example.com", "pw", ca.AccountConfirmed)
	h := newTestHandler(t, driver, newRecordingMailer())

	rr := doJSON(t, h, http.MethodGet, ca.DefaultAuthPath+"/tokencontent", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":{"value":"signedOut","context":{"tokenData":null,"error":null}}}`, rr.Body.String())

	login := post(t, h, "login", map[string]any{"email": "jane@example.com", "password": "pw"})
	rr = doJSON(t, h, http.MethodGet, ca.DefaultAuthPath+"/tokencontent", nil, responseCookie(login, "session"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"value":"signedIn"`)
	assert.Contains(t, rr.Body.String(), `"userId":"user-1"`)
}

func TestConnect(t *testing.T) {
	h := newTestHandler(t, newFakeDriver(), newRecordingMailer())
	requireOK(t, post(t, h, "connect", nil))
}
