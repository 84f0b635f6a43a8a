package oauth2

import (
	"github.com/panyam/cookieauth"
	"golang.org/x/oauth2/google"
)

var GoogleProvider = Provider{
	Key:      "google",
	Name:     "Google",
	Endpoint: google.Endpoint,
	Scopes: []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	},
	UserInfoURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
	SubjectField:  "id",
	EmailField:    "email",
	VerifiedField: "verified_email",
}

// Google returns an identity provider to register under the "google" key.
func Google(clientID, clientSecret string, store UserStore) *cookieauth.IdentityProvider {
	return GoogleProvider.IdentityProvider(clientID, clientSecret, store)
}
