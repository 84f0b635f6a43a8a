package client

import (
	"net/http"
)

// AuthTransport wraps an http.RoundTripper to send a session token as a
// bearer Authorization header, for services that do not read cookies such as
// gRPC gateways.
type AuthTransport struct {
	Base  http.RoundTripper
	Token string
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Token != "" {
		// Clone the request to avoid mutating the original
		req2 := req.Clone(req.Context())
		req2.Header.Set("Authorization", "Bearer "+t.Token)
		req = req2
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(req)
}

// NewAuthTransport creates an AuthTransport with the given token
func NewAuthTransport(token string) *AuthTransport {
	return &AuthTransport{
		Base:  http.DefaultTransport,
		Token: token,
	}
}

// BearerClient returns an http.Client that authenticates with the current
// session token.  It returns nil when signed out.
func (c *AuthClient) BearerClient() *http.Client {
	token := c.SessionToken()
	if token == "" {
		return nil
	}
	return &http.Client{Transport: &AuthTransport{Base: c.baseTransport, Token: token}}
}
