package cookieauth

import (
	"net/http"
	"strings"
)

// NewLoginHandler serves POST /login with {email, password, rememberMe?}.
func NewLoginHandler(o *Options) (http.Handler, error) {
	e, err := o.build(true)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.login), nil
}

func (e *handlerEnv) login(w http.ResponseWriter, r *http.Request) {
	body := parseBody(r)
	email, password, ok := e.emailAndPassword(w, body)
	if !ok {
		return
	}

	ctx := driverContext(r)
	result, err := e.server.Driver.AttemptEmailPasswordLogin(ctx, email, password)
	if err != nil {
		e.unexpected(w, RouteLogin, err)
		return
	}
	// Drivers may report the status of an unconfirmed account even when the
	// password did not match; the account is refused either way.
	if !result.Success && result.AccountStatus != AccountUnconfirmed {
		writeError(w, http.StatusOK, CodeAuthenticationFailed, "")
		return
	}
	if result.AccountStatus != AccountConfirmed {
		writeError(w, http.StatusOK, CodeAccountNotConfirmed,
			"Your account is not confirmed yet. You need to confirm it before you can sign in.")
		return
	}

	err = e.signIn(ctx, w, signIn{
		userID:     result.UserID,
		provider:   ProviderEmail,
		status:     result.AccountStatus,
		rememberMe: body.boolField("rememberMe"),
	})
	if err != nil {
		e.unexpected(w, RouteLogin, err)
		return
	}
	writeOK(w)
}

// emailAndPassword validates and normalizes the credentials shared by login
// and signup, writing the error response when they are unusable.
func (e *handlerEnv) emailAndPassword(w http.ResponseWriter, body requestBody) (email, password string, ok bool) {
	email, ok = body.stringField("email")
	if !ok {
		writeError(w, http.StatusOK, CodeInvalidEmail, "Invalid email.")
		return "", "", false
	}
	password, ok = body.stringField("password")
	if !ok {
		writeError(w, http.StatusOK, CodeInvalidPassword, "Invalid password.")
		return "", "", false
	}
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		writeError(w, http.StatusOK, CodeMissingEmailOrPassword, "Email and password must be provided.")
		return "", "", false
	}
	return email, password, true
}
