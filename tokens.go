package cookieauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose binds a single-use token to the flow that issued it.
type TokenPurpose string

const (
	PurposeConfirmAccount TokenPurpose = "confirm-account"
	PurposeResetPassword  TokenPurpose = "reset-password"
)

// Default token lifetimes
const (
	SessionTokenLifetime      = 7 * 24 * time.Hour
	TokenExpiryConfirmAccount = 1 * time.Hour
	TokenExpiryResetPassword  = 1 * time.Hour
)

// Claim names carried by session tokens
const (
	ClaimUserID        = "userId"
	ClaimProvider      = "provider"
	ClaimAccountStatus = "accountStatus"
	ClaimPurpose       = "purpose"
)

var (
	// ErrTokenInvalid is returned for malformed tokens and signature mismatches.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned for tokens whose signature verifies but whose
	// expiry has lapsed.  Drivers also return it (wrapped) when a credential
	// they hold for the user has expired.
	ErrTokenExpired = errors.New("jwt expired")

	ErrMissingTokenSecret = errors.New("cookieauth: missing token secret")
)

// Sign issues an HS256 token carrying claims that expires after expiresIn.
func Sign(claims map[string]any, secret string, expiresIn time.Duration) (string, error) {
	codec, err := NewTokenCodec(secret)
	if err != nil {
		return "", err
	}
	return codec.Sign(claims, expiresIn)
}

// Verify checks a token produced by Sign and returns its claims.
func Verify(token string, secret string) (map[string]any, error) {
	codec, err := NewTokenCodec(secret)
	if err != nil {
		return nil, err
	}
	return codec.Verify(token)
}

// TokenCodec signs and verifies tokens with a single shared secret.
type TokenCodec struct {
	secret []byte

	// TimeFunc replaces time.Now when issuing and validating tokens.
	TimeFunc func() time.Time
}

func NewTokenCodec(secret string) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingTokenSecret
	}
	return &TokenCodec{secret: []byte(secret)}, nil
}

func (c *TokenCodec) now() time.Time {
	if c.TimeFunc != nil {
		return c.TimeFunc()
	}
	return time.Now()
}

func (c *TokenCodec) Sign(claims map[string]any, expiresIn time.Duration) (string, error) {
	mapClaims := jwt.MapClaims{}
	for k, v := range claims {
		mapClaims[k] = v
	}
	now := c.now()
	mapClaims["iat"] = now.Unix()
	mapClaims["exp"] = now.Add(expiresIn).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify returns the claims of a token.  Failures wrap either ErrTokenExpired
// or ErrTokenInvalid; the signature is checked before the expiry, so a forged
// expired token is reported as invalid.
func (c *TokenCodec) Verify(tokenString string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case err == nil:
		return map[string]any(claims), nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
}

// SignPurpose issues a single-use token for userID bound to purpose.
func (c *TokenCodec) SignPurpose(userID string, purpose TokenPurpose, expiresIn time.Duration) (string, error) {
	return c.Sign(map[string]any{
		ClaimUserID:  userID,
		ClaimPurpose: string(purpose),
	}, expiresIn)
}

// VerifyPurpose verifies a token issued by SignPurpose and returns its user.
// A token issued for another purpose is reported as ErrTokenInvalid.
func (c *TokenCodec) VerifyPurpose(token string, purpose TokenPurpose) (string, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return "", err
	}
	if p, _ := claims[ClaimPurpose].(string); p != string(purpose) {
		return "", fmt.Errorf("%w: token is not a %s token", ErrTokenInvalid, purpose)
	}
	userID, _ := claims[ClaimUserID].(string)
	if userID == "" {
		return "", fmt.Errorf("%w: token has no %s", ErrTokenInvalid, ClaimUserID)
	}
	return userID, nil
}

// AccountStatus tracks whether an email account has been confirmed.
type AccountStatus string

const (
	AccountUnconfirmed AccountStatus = "unconfirmed"
	AccountConfirmed   AccountStatus = "confirmed"
)

// ProviderEmail is the provider recorded for email/password sessions.  OAuth
// sessions record the identity provider key instead.
const ProviderEmail = "email"

// TokenData is the decoded content of a session token.
type TokenData struct {
	UserID        string
	Provider      string
	AccountStatus AccountStatus

	// Extra holds claims contributed by a TokenContentFetcher along with the
	// registered iat and exp claims of a decoded token.
	Extra map[string]any
}

// Claims flattens the token data into a claim set.  The reserved claims always
// win over same-named extra claims.
func (t TokenData) Claims() map[string]any {
	out := make(map[string]any, len(t.Extra)+3)
	for k, v := range t.Extra {
		out[k] = v
	}
	delete(out, ClaimPurpose)
	out[ClaimUserID] = t.UserID
	out[ClaimProvider] = t.Provider
	out[ClaimAccountStatus] = string(t.AccountStatus)
	return out
}

// TokenDataFromClaims rebuilds session token data from verified claims.
// Purpose-bound tokens are not session tokens and are rejected.
func TokenDataFromClaims(claims map[string]any) (TokenData, error) {
	if _, ok := claims[ClaimPurpose]; ok {
		return TokenData{}, fmt.Errorf("%w: purpose-bound token used as session", ErrTokenInvalid)
	}
	userID, _ := claims[ClaimUserID].(string)
	if userID == "" {
		return TokenData{}, fmt.Errorf("%w: token has no %s", ErrTokenInvalid, ClaimUserID)
	}
	out := TokenData{UserID: userID, Extra: map[string]any{}}
	out.Provider, _ = claims[ClaimProvider].(string)
	status, _ := claims[ClaimAccountStatus].(string)
	out.AccountStatus = AccountStatus(status)
	for k, v := range claims {
		switch k {
		case ClaimUserID, ClaimProvider, ClaimAccountStatus:
		default:
			out.Extra[k] = v
		}
	}
	return out, nil
}

func (t TokenData) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Claims())
}

func (t *TokenData) UnmarshalJSON(data []byte) error {
	var claims map[string]any
	if err := json.Unmarshal(data, &claims); err != nil {
		return err
	}
	decoded, err := TokenDataFromClaims(claims)
	if err != nil {
		return err
	}
	*t = decoded
	return nil
}
