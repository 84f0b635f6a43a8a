// Package oauth2 has ready made identity providers for cookieauth.
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"

	"github.com/panyam/cookieauth"
)

// UserStore creates or finds the local user for a provider identity.  The
// stores packages implement it.
type UserStore interface {
	UpsertOAuthUser(ctx context.Context, provider, subject, email string, profile map[string]any) (string, error)
}

// Provider describes how to talk to one OAuth2 provider.
type Provider struct {
	Key      string
	Name     string
	Endpoint oauth2.Endpoint
	Scopes   []string

	// UserInfoURL can be overridden for testing.
	UserInfoURL string

	// SubjectField and EmailField name the user info fields holding the
	// stable provider id and the email.
	SubjectField string
	EmailField   string

	// The email is only passed on to the UserStore once the provider vouches
	// for it.  VerifiedField names a boolean user info field saying so.
	// EmailsURL lists the account's addresses instead, and the primary
	// verified one is used.  TrustEmail is for providers that only ever
	// return verified addresses.  With none of them set, no email is passed.
	VerifiedField string
	EmailsURL     string
	TrustEmail    bool
}

// IdentityProvider builds a cookieauth.IdentityProvider that looks up the
// user info after the code exchange and upserts it into store.
//
// Blank credentials fall back to OAUTH2_<KEY>_CLIENT_ID and
// OAUTH2_<KEY>_CLIENT_SECRET.
func (p Provider) IdentityProvider(clientID, clientSecret string, store UserStore) *cookieauth.IdentityProvider {
	envPrefix := "OAUTH2_" + strings.ToUpper(p.Key) + "_"
	if clientID == "" {
		clientID = strings.TrimSpace(os.Getenv(envPrefix + "CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv(envPrefix + "CLIENT_SECRET"))
	}
	return &cookieauth.IdentityProvider{
		Name: p.Name,
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     p.Endpoint,
			Scopes:       append([]string(nil), p.Scopes...),
		},
		UpsertUser: p.upserter(store),
	}
}

func (p Provider) upserter(store UserStore) cookieauth.UpsertUserFunc {
	return func(ctx context.Context, token *oauth2.Token) (string, error) {
		info, err := FetchUserInfo(ctx, p.UserInfoURL, token)
		if err != nil {
			return "", fmt.Errorf("%s: %w", p.Key, err)
		}
		subject := info.String(p.SubjectField)
		if subject == "" {
			return "", fmt.Errorf("%s: user info has no %q", p.Key, p.SubjectField)
		}
		email, err := p.verifiedEmail(ctx, token, info)
		if err != nil {
			return "", fmt.Errorf("%s: %w", p.Key, err)
		}
		if store == nil {
			return "", errors.New("no user store")
		}
		return store.UpsertOAuthUser(ctx, p.Key, subject, email, info)
	}
}

// verifiedEmail returns the normalized email the provider has verified, or "".
func (p Provider) verifiedEmail(ctx context.Context, token *oauth2.Token, info UserInfo) (string, error) {
	var email string
	switch {
	case p.EmailsURL != "":
		primary, err := FetchPrimaryEmail(ctx, p.EmailsURL, token)
		if err != nil {
			return "", err
		}
		email = primary
	case p.VerifiedField != "":
		if info.Bool(p.VerifiedField) {
			email = info.String(p.EmailField)
		}
	case p.TrustEmail:
		email = info.String(p.EmailField)
	}
	return strings.ToLower(strings.TrimSpace(email)), nil
}
