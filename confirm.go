package cookieauth

import (
	"context"
	"net/http"
)

// NewConfirmAccountHandler serves POST /confirm-account with {token}.  On
// success the user is signed in.
//
// A missing token is answered with HTTP 500 rather than the 200 used by other
// validation failures; clients already branch on that status.
func NewConfirmAccountHandler(o *Options) (http.Handler, error) {
	e, err := o.build(true)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.confirmAccount), nil
}

func (e *handlerEnv) confirmAccount(w http.ResponseWriter, r *http.Request) {
	token, ok := parseBody(r).stringField("token")
	if !ok || token == "" {
		writeError(w, http.StatusInternalServerError, CodeTokenMissing, "")
		return
	}

	userID, err := e.codec.VerifyPurpose(token, PurposeConfirmAccount)
	if err != nil {
		e.unexpected(w, RouteConfirmAccount, err)
		return
	}

	ctx := driverContext(r)
	confirmed, err := e.server.Driver.ConfirmAccount(ctx, userID)
	if err != nil {
		e.unexpected(w, RouteConfirmAccount, err)
		return
	}
	if !confirmed {
		writeError(w, http.StatusOK, CodeNoUserOrInvalidState, "")
		return
	}

	err = e.signIn(ctx, w, signIn{
		userID:   userID,
		provider: ProviderEmail,
		status:   AccountConfirmed,
	})
	if err != nil {
		e.unexpected(w, RouteConfirmAccount, err)
		return
	}
	writeOK(w)
}

// NewResendConfirmationEmailHandler serves POST /resend-confirmation-email
// with {email}.  Unknown emails are answered ok without sending anything.
func NewResendConfirmationEmailHandler(o *Options) (http.Handler, error) {
	e, err := o.build(true)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.resendConfirmationEmail), nil
}

func (e *handlerEnv) resendConfirmationEmail(w http.ResponseWriter, r *http.Request) {
	email, ok := e.email(w, parseBody(r))
	if !ok {
		return
	}

	ctx := driverContext(r)
	userID, err := e.server.Driver.GetUserIDByEmail(ctx, email)
	if err != nil {
		e.unexpected(w, RouteResendConfirmationEmail, err)
		return
	}
	if userID == "" {
		writeOK(w)
		return
	}

	if err := e.sendConfirmAccountMail(ctx, userID, email); err != nil {
		e.unexpected(w, RouteResendConfirmationEmail, err)
		return
	}
	writeOK(w)
}

func (e *handlerEnv) sendConfirmAccountMail(ctx context.Context, userID string, email string) error {
	token, err := e.codec.SignPurpose(userID, PurposeConfirmAccount, e.server.ConfirmTokenLifetime)
	if err != nil {
		return err
	}
	return e.mailer.SendConfirmAccountMail(ctx, email, e.link("/confirm-account", token))
}
