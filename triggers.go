package cookieauth

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"
)

// Mailer lets applications provide their own mail delivery.
type Mailer interface {
	SendConfirmAccountMail(ctx context.Context, email string, link string) error
	SendForgotPasswordMail(ctx context.Context, email string, link string) error
}

// TokenContentRequest identifies the session being issued.  OAuthToken is set
// only for OAuth sign-ins; it is never exposed to the client otherwise.
type TokenContentRequest struct {
	UserID     string
	OAuthToken *oauth2.Token
}

// TokenContentFetcher is an optional capability that adds claims to every
// session token issued.
type TokenContentFetcher interface {
	FetchAdditionalTokenContent(ctx context.Context, req TokenContentRequest) (map[string]any, error)
}

// Triggers are the outbound hooks called by the lifecycle handlers.
type Triggers struct {
	// Mailer defaults to a ConsoleMailer
	Mailer Mailer

	// TokenContent defaults to the Mailer when it implements
	// TokenContentFetcher, and to NoTokenContent otherwise.
	TokenContent TokenContentFetcher
}

func (t Triggers) withDefaults(logger *slog.Logger) Triggers {
	if t.Mailer == nil {
		t.Mailer = &ConsoleMailer{Logger: logger}
	}
	if t.TokenContent == nil {
		if fetcher, ok := t.Mailer.(TokenContentFetcher); ok {
			t.TokenContent = fetcher
		} else {
			t.TokenContent = NoTokenContent{}
		}
	}
	return t
}

// ConsoleMailer is a development Mailer that logs mails instead of sending them.
type ConsoleMailer struct {
	Logger *slog.Logger
}

func (c *ConsoleMailer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *ConsoleMailer) SendConfirmAccountMail(ctx context.Context, email string, link string) error {
	c.logger().InfoContext(ctx, "=== EMAIL: Confirm account ===",
		"to", email,
		"subject", "Confirm your account",
		"body", "Welcome, your account has been created. Click the link below to activate it: "+link+
			" PS: If you did not sign up, you can simply ignore this email.")
	return nil
}

func (c *ConsoleMailer) SendForgotPasswordMail(ctx context.Context, email string, link string) error {
	c.logger().InfoContext(ctx, "=== EMAIL: Reset password ===",
		"to", email,
		"subject", "Reset your password",
		"body", "Hello, somebody requested a reset of your password. Click the link below to reset it: "+link+
			" PS: If you did not request a reset, you can simply ignore this email.")
	return nil
}

// NoTokenContent adds nothing to session tokens.
type NoTokenContent struct{}

func (NoTokenContent) FetchAdditionalTokenContent(context.Context, TokenContentRequest) (map[string]any, error) {
	return nil, nil
}
