package cookieauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// NewForgotPasswordHandler serves POST /forgot-password with {email}.
//
// It always answers ok after at least the anti-enumeration delay.  When the
// email belongs to a user the reset mail is sent in the background.
func NewForgotPasswordHandler(o *Options) (http.Handler, error) {
	e, err := o.build(true)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.forgotPassword), nil
}

func (e *handlerEnv) forgotPassword(w http.ResponseWriter, r *http.Request) {
	email, ok := e.email(w, parseBody(r))
	if !ok {
		return
	}

	ctx := driverContext(r)
	var userID string
	err := e.padded(func() (err error) {
		userID, err = e.server.Driver.GetUserIDByEmail(ctx, email)
		return err
	})
	if err != nil {
		e.unexpected(w, RouteForgotPassword, err)
		return
	}

	if userID != "" {
		e.detacher.Go(ctx, "forgot-password mail", func(ctx context.Context) error {
			token, err := e.codec.SignPurpose(userID, PurposeResetPassword, e.server.ResetTokenLifetime)
			if err != nil {
				return err
			}
			return e.mailer.SendForgotPasswordMail(ctx, email, e.link("/reset-password", token))
		})
	}
	writeOK(w)
}

// email validates and normalizes the {email} body of forgot-password and
// resend-confirmation-email.
func (e *handlerEnv) email(w http.ResponseWriter, body requestBody) (string, bool) {
	email, ok := body.stringField("email")
	if !ok {
		writeError(w, http.StatusOK, CodeInvalidEmail, "Email must be provided as a string.")
		return "", false
	}
	email = normalizeEmail(email)
	if email == "" {
		writeError(w, http.StatusOK, CodeMissingEmail, "Email must be provided.")
		return "", false
	}
	return email, true
}

// NewResetPasswordHandler serves POST /reset-password with {token, password}.
// On success the user is signed in.
func NewResetPasswordHandler(o *Options) (http.Handler, error) {
	e, err := o.build(true)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.resetPassword), nil
}

func (e *handlerEnv) resetPassword(w http.ResponseWriter, r *http.Request) {
	body := parseBody(r)
	token, ok := body.stringField("token")
	if !ok {
		writeError(w, http.StatusOK, CodeInvalidToken, "Invalid token.")
		return
	}
	password, ok := body.stringField("password")
	if !ok {
		writeError(w, http.StatusOK, CodeInvalidPassword, "Invalid password.")
		return
	}
	if token == "" {
		writeError(w, http.StatusOK, CodeMissingToken, "Token must be provided.")
		return
	}
	password = strings.TrimSpace(password)
	if password == "" {
		writeError(w, http.StatusOK, CodeMissingPassword, "Password must be provided.")
		return
	}

	userID, err := e.codec.VerifyPurpose(token, PurposeResetPassword)
	if errors.Is(err, ErrTokenExpired) {
		writeError(w, http.StatusOK, CodeJWTExpired, "")
		return
	} else if err != nil {
		e.unexpected(w, RouteResetPassword, err)
		return
	}

	ctx := driverContext(r)
	if err := e.server.Driver.UpdateEmailUserPassword(ctx, userID, password); err != nil {
		e.unexpected(w, RouteResetPassword, err)
		return
	}
	err = e.signIn(ctx, w, signIn{
		userID:   userID,
		provider: ProviderEmail,
		status:   AccountConfirmed,
	})
	if err != nil {
		e.unexpected(w, RouteResetPassword, err)
		return
	}
	writeOK(w)
}

// NewChangePasswordHandler serves POST /change-password with
// {currentPassword, newPassword} for the signed in user.  The session cookie
// is left as is.
func NewChangePasswordHandler(o *Options) (http.Handler, error) {
	e, err := o.build(true)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.changePassword), nil
}

func (e *handlerEnv) changePassword(w http.ResponseWriter, r *http.Request) {
	state := e.sessions.Resolve(r)
	if !state.IsSignedIn() {
		writeError(w, http.StatusOK, CodeUnauthorized, "")
		return
	}

	body := parseBody(r)
	currentPassword, ok := body.stringField("currentPassword")
	if !ok {
		writeError(w, http.StatusOK, CodeInvalidCurrentPassword, "Invalid current password.")
		return
	}
	newPassword, ok := body.stringField("newPassword")
	if !ok {
		writeError(w, http.StatusOK, CodeInvalidNewPassword, "Invalid new password.")
		return
	}
	currentPassword = strings.TrimSpace(currentPassword)
	newPassword = strings.TrimSpace(newPassword)
	if currentPassword == "" {
		writeError(w, http.StatusOK, CodeMissingCurrentPassword, "Current password must be provided.")
		return
	}
	if newPassword == "" {
		writeError(w, http.StatusOK, CodeMissingNewPassword, "New password must be provided.")
		return
	}

	err := e.server.Driver.ChangeEmailUserPassword(driverContext(r), state.UserID(), currentPassword, newPassword)
	switch {
	case err == nil:
		writeOK(w)
	case errors.Is(err, ErrTokenExpired):
		writeError(w, http.StatusOK, CodeJWTExpired, "")
	case errors.Is(err, ErrAuthenticationFailed):
		writeError(w, http.StatusOK, CodeAuthenticationFailed, "")
	default:
		e.unexpected(w, RouteChangePassword, err)
	}
}
