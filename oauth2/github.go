package oauth2

import (
	"github.com/panyam/cookieauth"
	"golang.org/x/oauth2/github"
)

var GitHubProvider = Provider{
	Key:          "github",
	Name:         "GitHub",
	Endpoint:     github.Endpoint,
	Scopes:       []string{"read:user", "user:email"},
	UserInfoURL:  "https://api.github.com/user",
	SubjectField: "id",
	EmailField:   "email",

	// the public profile email is not necessarily verified
	EmailsURL: "https://api.github.com/user/emails",
}

// GitHub returns an identity provider to register under the "github" key.
func GitHub(clientID, clientSecret string, store UserStore) *cookieauth.IdentityProvider {
	return GitHubProvider.IdentityProvider(clientID, clientSecret, store)
}
