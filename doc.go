// Package cookieauth is an embeddable authentication engine for Go web
// applications.  Sessions are signed JWTs carried in an httpOnly cookie, so
// the server keeps no session state.
//
// # Architecture
//
// Handler: dispatches the auth routes (login, signup, logout, tokencontent,
// forgot-password, reset-password, change-password, confirm-account,
// resend-confirmation-email, oauth, connect) under a configurable path.
// Every response is a JSON envelope, either {"data": ...} or
// {"error": {"code": ..., "message": ...}}.  Unknown routes get an empty 404.
//
// Driver: the application's user store.  The library never touches storage
// itself; the stores package and its fs, gorm and gae backends provide
// ready made drivers.
//
// Triggers: outbound hooks for sending mails and adding claims to session
// tokens.  ConsoleMailer prints mails to the log during development.
//
// SessionResolver: turns the session cookie of any request into an
// AuthState, for use by the rest of the application.
//
// # Basic Usage
//
//	driver := fs.NewDriver("/var/lib/myapp/users")
//
//	auth, err := cookieauth.NewHandler(&cookieauth.Options{
//	    Public: cookieauth.PublicConfig{
//	        BaseURL: "https://myapp.example.com",
//	    },
//	    Server: cookieauth.ServerConfig{
//	        TokenSecret: os.Getenv("COOKIEAUTH_TOKEN_SECRET"),
//	        Secure:      true,
//	        Driver:      driver,
//	        IdentityProviders: map[string]*cookieauth.IdentityProvider{
//	            "github": oauth2.GitHub("", "", driver),
//	        },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	mux.Handle("/api/auth/", auth)
//	mux.Handle("/account", auth.Sessions().EnsureSignedIn(accountPage))
//
// Shut down with auth.Shutdown(ctx) after the HTTP server so that mails still
// being sent are not lost.
//
// # Tokens
//
// Session tokens carry userId, provider and accountStatus claims plus any
// extra claims from the TokenContentFetcher.  Confirmation and reset tokens
// are signed with the same secret but carry a purpose claim and are never
// accepted as sessions.  Rotating the secret signs everyone out.
package cookieauth
