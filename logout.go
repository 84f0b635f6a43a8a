package cookieauth

import "net/http"

// NewLogoutHandler clears the session cookie.  It succeeds with or without a
// current session.
func NewLogoutHandler(o *Options) (http.Handler, error) {
	e, err := o.build(false)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.logout), nil
}

func (e *handlerEnv) logout(w http.ResponseWriter, r *http.Request) {
	setCookies(w, e.cookies.ClearSessionCookie())
	writeOK(w)
}

// NewTokenContentHandler answers {data: AuthState} for the current session.
func NewTokenContentHandler(o *Options) (http.Handler, error) {
	e, err := o.build(false)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(e.tokenContent), nil
}

func (e *handlerEnv) tokenContent(w http.ResponseWriter, r *http.Request) {
	writeData(w, e.sessions.Resolve(r))
}

// NewConnectHandler is a placeholder route that always answers ok.
func NewConnectHandler(o *Options) (http.Handler, error) {
	if _, err := o.build(false); err != nil {
		return nil, err
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeOK(w)
	}), nil
}
