package cookieauth

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultSessionCookieName = "cookieauth"

	// SyncCookieName names the script-readable cookie that tells other tabs
	// of the same origin that a login happened.  The client clears it after
	// reading it.
	SyncCookieName  = "syncAuthState"
	SyncCookieValue = "login"

	OAuthStateCookieName = "oauth2state"
	oauthStateTTL        = 10 * time.Minute

	// rememberMeMargin keeps a persistent session cookie from outliving the
	// token it carries.
	rememberMeMargin = 30 * time.Second
)

// CookieSerializer builds the Set-Cookie values for sessions.
type CookieSerializer struct {
	// Name of the session cookie
	Name string

	// Secure marks every cookie as https-only
	Secure bool

	// TokenLifetime is the expiry given to session tokens
	TokenLifetime time.Duration

	Codec *TokenCodec
}

// SessionCookies signs data into a session token and returns the session
// cookie followed by the sync cookie.  Without rememberMe the session cookie
// has no Max-Age and lasts for the browser session only.
func (s *CookieSerializer) SessionCookies(data TokenData, rememberMe bool) ([]*http.Cookie, error) {
	token, err := s.Codec.Sign(data.Claims(), s.TokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}
	session := &http.Cookie{
		Name:     s.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if rememberMe {
		if maxAge := int((s.TokenLifetime - rememberMeMargin).Seconds()); maxAge > 0 {
			session.MaxAge = maxAge
		}
	}
	sync := &http.Cookie{
		Name:     SyncCookieName,
		Value:    SyncCookieValue,
		Path:     "/",
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return []*http.Cookie{session, sync}, nil
}

// ClearSessionCookie expires the session cookie immediately.
func (s *CookieSerializer) ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *CookieSerializer) OAuthStateCookie(state string) *http.Cookie {
	return &http.Cookie{
		Name:     OAuthStateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *CookieSerializer) ClearOAuthStateCookie() *http.Cookie {
	return &http.Cookie{
		Name:     OAuthStateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// setCookies adds a Set-Cookie header per cookie.  net/http renders a
// negative MaxAge as Max-Age=0, so cleared cookies are rewritten to carry
// Max-Age=-1.
func setCookies(w http.ResponseWriter, cookies ...*http.Cookie) {
	for _, c := range cookies {
		v := c.String()
		if v == "" {
			continue
		}
		if c.MaxAge < 0 {
			v = strings.Replace(v, "; Max-Age=0", "; Max-Age=-1", 1)
		}
		w.Header().Add("Set-Cookie", v)
	}
}
