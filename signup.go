package cookieauth

import (
	"context"
	"net/http"
)

// NewSignupHandler serves POST /signup with {email, password}.
//
// The response is {data:{ok:true}} whether or not the email was already
// registered, and both outcomes take at least the anti-enumeration delay.
func NewSignupHandler(o *Options) (http.Handler, error) {
	e, err := o.build(true)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.signup), nil
}

func (e *handlerEnv) signup(w http.ResponseWriter, r *http.Request) {
	email, password, ok := e.emailAndPassword(w, parseBody(r))
	if !ok {
		return
	}

	ctx := driverContext(r)
	var result CreateResult
	err := e.padded(func() (err error) {
		result, err = e.server.Driver.CreateEmailUser(ctx, email, password)
		return err
	})
	if err != nil {
		e.unexpected(w, RouteSignup, err)
		return
	}
	if !result.Success {
		writeOK(w)
		return
	}

	token, err := e.codec.SignPurpose(result.UserID, PurposeConfirmAccount, e.server.ConfirmTokenLifetime)
	if err != nil {
		e.unexpected(w, RouteSignup, err)
		return
	}
	link := e.link("/confirm-account", token)
	writeOK(w)

	e.detacher.Go(ctx, "confirm-account mail", func(ctx context.Context) error {
		return e.mailer.SendConfirmAccountMail(ctx, email, link)
	})
}
