package cookieauth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// Route is the first path segment after PublicConfig.AuthPath.
type Route string

const (
	RouteLogin                   Route = "login"
	RouteLogout                  Route = "logout"
	RouteSignup                  Route = "signup"
	RouteTokenContent            Route = "tokencontent"
	RouteForgotPassword          Route = "forgot-password"
	RouteResetPassword           Route = "reset-password"
	RouteChangePassword          Route = "change-password"
	RouteConfirmAccount          Route = "confirm-account"
	RouteResendConfirmationEmail Route = "resend-confirmation-email"
	RouteOAuth                   Route = "oauth"
	RouteConnect                 Route = "connect"
)

// HandlerFactory builds the handler of one route.
type HandlerFactory func(o *Options) (http.Handler, error)

var routeFactories = map[Route]HandlerFactory{
	RouteLogin:                   NewLoginHandler,
	RouteLogout:                  NewLogoutHandler,
	RouteSignup:                  NewSignupHandler,
	RouteTokenContent:            NewTokenContentHandler,
	RouteForgotPassword:          NewForgotPasswordHandler,
	RouteResetPassword:           NewResetPasswordHandler,
	RouteChangePassword:          NewChangePasswordHandler,
	RouteConfirmAccount:          NewConfirmAccountHandler,
	RouteResendConfirmationEmail: NewResendConfirmationEmailHandler,
	RouteOAuth:                   NewOAuthHandler,
	RouteConnect:                 NewConnectHandler,
}

// Routes lists every route in a fixed order.
func Routes() []Route {
	return []Route{
		RouteLogin,
		RouteLogout,
		RouteSignup,
		RouteTokenContent,
		RouteForgotPassword,
		RouteResetPassword,
		RouteChangePassword,
		RouteConfirmAccount,
		RouteResendConfirmationEmail,
		RouteOAuth,
		RouteConnect,
	}
}

// Handler dispatches every auth route.  All route handlers are built once by
// NewHandler; unknown routes get a 404 with an empty body.
type Handler struct {
	router   *mux.Router
	handlers map[Route]http.Handler
	sessions *SessionResolver
	detacher *Detacher
	public   PublicConfig
}

func NewHandler(opts *Options) (*Handler, error) {
	o := *opts
	o.Server.EnsureDefaults()
	if o.Detacher == nil {
		o.Detacher = NewDetacher(o.Server.Logger)
	}
	o.Public.EnsureDefaults()
	if o.Public.IdentityProviders == nil {
		o.Public.IdentityProviders = o.Server.PublicIdentityProviders()
	}

	sessions, err := NewSessionResolver(o.Server.CookieName, o.Server.TokenSecret)
	if err != nil {
		return nil, err
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router := mux.NewRouter()
	router.NotFoundHandler = notFound
	sub := router.PathPrefix(o.Public.AuthPath).Subrouter()
	sub.NotFoundHandler = notFound

	h := &Handler{
		router:   router,
		handlers: make(map[Route]http.Handler),
		sessions: sessions,
		detacher: o.Detacher,
		public:   o.Public,
	}
	for _, route := range Routes() {
		handler, err := routeFactories[route](&o)
		if err != nil {
			return nil, fmt.Errorf("building %s handler: %w", route, err)
		}
		h.handlers[route] = handler
		path := "/" + string(route)
		sub.Handle(path, handler)
		if route == RouteOAuth {
			sub.Handle(path+"/{provider}", handler)
			sub.Handle(path+"/{provider}/{method}", handler)
		}
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Route returns the handler built for route, or nil.
func (h *Handler) Route(route Route) http.Handler {
	return h.handlers[route]
}

// Sessions resolves sessions issued by this Handler, for use by the rest of
// the application.
func (h *Handler) Sessions() *SessionResolver {
	return h.sessions
}

// PublicConfig returns the resolved public configuration.
func (h *Handler) PublicConfig() PublicConfig {
	return h.public
}

// Shutdown waits for background mail sends to finish or ctx to end.
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.detacher.Wait(ctx)
}
