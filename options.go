package cookieauth

import (
	"errors"
	"log/slog"
)

var ErrMissingDriver = errors.New("cookieauth: missing driver")

// Options is the bundle every route handler is built from.
type Options struct {
	Public PublicConfig
	Server ServerConfig

	// Detacher runs fire-and-forget triggers.  Handlers built from the same
	// Options share it; one is created per handler when nil.
	Detacher *Detacher
}

// handlerEnv is the resolved, read-only state shared by the handlers built
// from one Options.
type handlerEnv struct {
	public   PublicConfig
	server   ServerConfig
	codec    *TokenCodec
	cookies  *CookieSerializer
	sessions *SessionResolver
	mailer   Mailer
	content  TokenContentFetcher
	detacher *Detacher
	logger   *slog.Logger
}

// build validates o and resolves its defaults without mutating it.
func (o *Options) build(needsDriver bool) (*handlerEnv, error) {
	public := o.Public
	public.EnsureDefaults()
	server := o.Server
	server.EnsureDefaults()

	codec, err := NewTokenCodec(server.TokenSecret)
	if err != nil {
		return nil, err
	}
	if needsDriver && server.Driver == nil {
		return nil, ErrMissingDriver
	}

	detacher := o.Detacher
	if detacher == nil {
		detacher = NewDetacher(server.Logger)
	}
	return &handlerEnv{
		public: public,
		server: server,
		codec:  codec,
		cookies: &CookieSerializer{
			Name:          server.CookieName,
			Secure:        server.Secure,
			TokenLifetime: server.SessionLifetime,
			Codec:         codec,
		},
		sessions: &SessionResolver{CookieName: server.CookieName, Codec: codec},
		mailer:   server.Triggers.Mailer,
		content:  server.Triggers.TokenContent,
		detacher: detacher,
		logger:   server.Logger,
	}, nil
}
