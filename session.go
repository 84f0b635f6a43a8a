package cookieauth

import (
	"context"
	"net/http"
)

// AuthStateValue tags an AuthState.
type AuthStateValue string

const (
	// StateAuthenticating and StateSignInError are client-side states; the
	// server only ever produces StateSignedIn or StateSignedOut.
	StateAuthenticating AuthStateValue = "authenticating"
	StateSignedIn       AuthStateValue = "signedIn"
	StateSignedOut      AuthStateValue = "signedOut"
	StateSignInError    AuthStateValue = "signInError"
)

type AuthContext struct {
	TokenData *TokenData `json:"tokenData"`
	Error     *string    `json:"error"`
}

// AuthState is derived from the session cookie on every request and never
// stored.
type AuthState struct {
	Value   AuthStateValue `json:"value"`
	Context AuthContext    `json:"context"`
}

func SignedIn(data TokenData) AuthState {
	return AuthState{Value: StateSignedIn, Context: AuthContext{TokenData: &data}}
}

func SignedOut() AuthState {
	return AuthState{Value: StateSignedOut}
}

func (s AuthState) IsSignedIn() bool {
	return s.Value == StateSignedIn && s.Context.TokenData != nil
}

// UserID returns the signed in user or "".
func (s AuthState) UserID() string {
	if !s.IsSignedIn() {
		return ""
	}
	return s.Context.TokenData.UserID
}

// SessionResolver turns the session cookie of a request into an AuthState.
type SessionResolver struct {
	CookieName string
	Codec      *TokenCodec
}

func NewSessionResolver(cookieName string, secret string) (*SessionResolver, error) {
	codec, err := NewTokenCodec(secret)
	if err != nil {
		return nil, err
	}
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	return &SessionResolver{CookieName: cookieName, Codec: codec}, nil
}

// Resolve never fails: a missing, invalid or expired session is signedOut.
func (s *SessionResolver) Resolve(r *http.Request) AuthState {
	cookie, err := r.Cookie(s.CookieName)
	if err != nil || cookie.Value == "" {
		return SignedOut()
	}
	return s.ResolveToken(cookie.Value)
}

func (s *SessionResolver) ResolveToken(token string) AuthState {
	claims, err := s.Codec.Verify(token)
	if err != nil {
		return SignedOut()
	}
	data, err := TokenDataFromClaims(claims)
	if err != nil {
		return SignedOut()
	}
	return SignedIn(data)
}

type authStateKey struct{}

// ContextWithAuthState stores state for AuthStateFromContext.
func ContextWithAuthState(ctx context.Context, state AuthState) context.Context {
	return context.WithValue(ctx, authStateKey{}, state)
}

// AuthStateFromContext returns the state stored by ExtractAuthState, or
// signedOut when there is none.
func AuthStateFromContext(ctx context.Context) AuthState {
	if state, ok := ctx.Value(authStateKey{}).(AuthState); ok {
		return state
	}
	return SignedOut()
}

/**
 * Resolves the session of every request and makes it available to later
 * handlers through AuthStateFromContext.
 *
 * This does not reject signed out requests.  Use EnsureSignedIn for that.
 */
func (s *SessionResolver) ExtractAuthState(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := s.Resolve(r)
		next.ServeHTTP(w, r.WithContext(ContextWithAuthState(r.Context(), state)))
	})
}

// EnsureSignedIn rejects signed out requests with 401 and an unauthorized
// error envelope.
func (s *SessionResolver) EnsureSignedIn(next http.Handler) http.Handler {
	return s.ExtractAuthState(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !AuthStateFromContext(r.Context()).IsSignedIn() {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
