package cookieauth

import (
	"context"
	"errors"
)

// Failure reasons reported by drivers
const (
	ReasonAuthenticationFailed = "authentication failed"
	ReasonInstanceNotUnique    = "instance not unique"
)

// ErrAuthenticationFailed is returned (possibly wrapped) by
// ChangeEmailUserPassword when the current password does not match.
var ErrAuthenticationFailed = errors.New("authentication failed")

// LoginResult is the outcome of an email/password login attempt.
type LoginResult struct {
	Success       bool
	Reason        string
	UserID        string
	AccountStatus AccountStatus
}

// CreateResult is the outcome of creating an email user.  A duplicate email
// is reported with Success false and ReasonInstanceNotUnique, not an error.
type CreateResult struct {
	Success bool
	Reason  string
	UserID  string
}

// Driver persists accounts.  Implementations own password hashing.
// Returned errors are treated as unexpected unless documented otherwise.
type Driver interface {
	AttemptEmailPasswordLogin(ctx context.Context, email, password string) (LoginResult, error)

	CreateEmailUser(ctx context.Context, email, password string) (CreateResult, error)

	UpdateEmailUserPassword(ctx context.Context, userID, password string) error

	// ChangeEmailUserPassword replaces the password after checking the current
	// one.  A wrong current password returns ErrAuthenticationFailed and an
	// expired credential returns ErrTokenExpired.
	ChangeEmailUserPassword(ctx context.Context, userID, currentPassword, newPassword string) error

	// GetUserIDByEmail returns "" with a nil error when no user has the email.
	GetUserIDByEmail(ctx context.Context, email string) (string, error)

	// ConfirmAccount marks the user confirmed.  It returns false when the user
	// does not exist or is in a state that cannot be confirmed.
	ConfirmAccount(ctx context.Context, userID string) (bool, error)
}
