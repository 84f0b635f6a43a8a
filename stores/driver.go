// Package stores implements cookieauth.Driver on top of a small record
// Backend.  The fs, gorm and gae subpackages provide backends.
package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/panyam/cookieauth"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")

	// ErrProviderTaken means a (provider, subject) pair already belongs to
	// another user.
	ErrProviderTaken = errors.New("provider identity already linked")
)

// User is the record every backend persists.
type User struct {
	ID           string                   `json:"id"`
	Email        string                   `json:"email,omitempty"`
	PasswordHash string                   `json:"password_hash,omitempty"`
	Status       cookieauth.AccountStatus `json:"status"`
	Profile      map[string]any           `json:"profile,omitempty"`

	// Providers maps an OAuth provider key to the subject it knows the user
	// by.
	Providers map[string]string `json:"providers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend persists users.  Email and (provider, subject) pairs are unique.
type Backend interface {
	// InsertUser fails with ErrEmailTaken when u.Email is already in use
	// and with ErrProviderTaken when one of u.Providers is linked to another
	// user.  Nothing is written on failure.
	InsertUser(ctx context.Context, u *User) error

	// GetUser, FindByEmail and FindByProvider fail with ErrUserNotFound.
	GetUser(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByProvider(ctx context.Context, provider, subject string) (*User, error)

	// UpdateUser applies mutate to the stored user atomically and saves the
	// result unless mutate fails.  Linking a provider identity held by another
	// user fails with ErrProviderTaken.
	UpdateUser(ctx context.Context, id string, mutate func(u *User) error) (*User, error)
}

// EmailKey is the index key for an email: hex sha256 of the lowercased
// address.  It is safe to use as a file name or datastore key.
func EmailKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// ProviderKey is the index key for a provider identity.
func ProviderKey(provider, subject string) string {
	sum := sha256.Sum256([]byte(provider + ":" + subject))
	return provider + "-" + hex.EncodeToString(sum[:16])
}

// Driver is a cookieauth.Driver with bcrypt password hashing.  It also
// implements the UpsertOAuthUser hook used by the oauth2 presets.
type Driver struct {
	Backend Backend

	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int

	// AutoConfirm creates email users already confirmed.
	AutoConfirm bool

	Now func() time.Time

	// dummyHash is compared against for unknown emails so that a miss costs
	// as much as a wrong password.
	dummyOnce sync.Once
	dummyHash []byte
}

var _ cookieauth.Driver = (*Driver)(nil)

func NewDriver(backend Backend) *Driver {
	return &Driver{Backend: backend, HashCost: bcrypt.DefaultCost, Now: time.Now}
}

func (d *Driver) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Driver) cost() int {
	if d.HashCost < bcrypt.MinCost {
		return bcrypt.DefaultCost
	}
	return d.HashCost
}

func (d *Driver) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost())
	if err != nil {
		return "", oops.In("stores").Code("HASH_FAILED").Wrap(err)
	}
	return string(hash), nil
}

func (d *Driver) burnCompare(password string) {
	d.dummyOnce.Do(func() {
		d.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), d.cost())
	})
	bcrypt.CompareHashAndPassword(d.dummyHash, []byte(password))
}

func (d *Driver) AttemptEmailPasswordLogin(ctx context.Context, email, password string) (cookieauth.LoginResult, error) {
	failed := cookieauth.LoginResult{Reason: cookieauth.ReasonAuthenticationFailed}
	u, err := d.Backend.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		d.burnCompare(password)
		return failed, nil
	}
	if err != nil {
		return failed, oops.In("stores").Code("LOOKUP_FAILED").With("operation", "login").Wrap(err)
	}
	failed.AccountStatus = u.Status
	if u.PasswordHash == "" {
		// OAuth only account
		d.burnCompare(password)
		return failed, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return failed, nil
	}
	return cookieauth.LoginResult{Success: true, UserID: u.ID, AccountStatus: u.Status}, nil
}

func (d *Driver) CreateEmailUser(ctx context.Context, email, password string) (cookieauth.CreateResult, error) {
	hash, err := d.hash(password)
	if err != nil {
		return cookieauth.CreateResult{}, err
	}
	status := cookieauth.AccountUnconfirmed
	if d.AutoConfirm {
		status = cookieauth.AccountConfirmed
	}
	now := d.now()
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = d.Backend.InsertUser(ctx, u)
	if errors.Is(err, ErrEmailTaken) {
		return cookieauth.CreateResult{Reason: cookieauth.ReasonInstanceNotUnique}, nil
	}
	if err != nil {
		return cookieauth.CreateResult{}, oops.In("stores").Code("INSERT_FAILED").With("operation", "signup").Wrap(err)
	}
	return cookieauth.CreateResult{Success: true, UserID: u.ID}, nil
}

func (d *Driver) UpdateEmailUserPassword(ctx context.Context, userID, password string) error {
	hash, err := d.hash(password)
	if err != nil {
		return err
	}
	_, err = d.Backend.UpdateUser(ctx, userID, func(u *User) error {
		u.PasswordHash = hash
		// proving control of the mailbox confirms it
		u.Status = cookieauth.AccountConfirmed
		u.UpdatedAt = d.now()
		return nil
	})
	if err != nil {
		return oops.In("stores").Code("UPDATE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

func (d *Driver) ChangeEmailUserPassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	hash, err := d.hash(newPassword)
	if err != nil {
		return err
	}
	_, err = d.Backend.UpdateUser(ctx, userID, func(u *User) error {
		if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)) != nil {
			return cookieauth.ErrAuthenticationFailed
		}
		u.PasswordHash = hash
		u.UpdatedAt = d.now()
		return nil
	})
	if err != nil {
		return oops.In("stores").Code("CHANGE_PASSWORD_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

func (d *Driver) GetUserIDByEmail(ctx context.Context, email string) (string, error) {
	u, err := d.Backend.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", oops.In("stores").Code("LOOKUP_FAILED").Wrap(err)
	}
	return u.ID, nil
}

// ConfirmAccount reports false for unknown users.  Confirming twice is not
// an error.
func (d *Driver) ConfirmAccount(ctx context.Context, userID string) (bool, error) {
	_, err := d.Backend.UpdateUser(ctx, userID, func(u *User) error {
		if u.Status != cookieauth.AccountConfirmed {
			u.Status = cookieauth.AccountConfirmed
			u.UpdatedAt = d.now()
		}
		return nil
	})
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, oops.In("stores").Code("CONFIRM_FAILED").With("user_id", userID).Wrap(err)
	}
	return true, nil
}

// UpsertOAuthUser returns the user linked to (provider, subject).  Otherwise
// it links the provider to the confirmed user owning email, or creates a new
// confirmed user.  email must be one the provider has verified, or "".
//
// An unconfirmed account is never linked: anyone can sign up with an address
// they do not own.  The new user is then created without an email.
func (d *Driver) UpsertOAuthUser(ctx context.Context, provider, subject, email string, profile map[string]any) (string, error) {
	errb := oops.In("stores").With("provider", provider)
	id, err := d.linkedUser(ctx, provider, subject)
	if err != nil {
		return "", errb.Code("LOOKUP_FAILED").Wrap(err)
	}
	if id != "" {
		return id, nil
	}

	link := func(u *User) error {
		if u.Providers == nil {
			u.Providers = map[string]string{}
		}
		u.Providers[provider] = subject
		u.UpdatedAt = d.now()
		return nil
	}

	if email != "" {
		existing, err := d.Backend.FindByEmail(ctx, email)
		switch {
		case err == nil && existing.Status == cookieauth.AccountConfirmed:
			_, err := d.Backend.UpdateUser(ctx, existing.ID, link)
			if errors.Is(err, ErrProviderTaken) {
				return d.raceWinner(ctx, provider, subject)
			}
			if err != nil {
				return "", errb.Code("LINK_FAILED").Wrap(err)
			}
			return existing.ID, nil
		case err == nil:
			email = ""
		case !errors.Is(err, ErrUserNotFound):
			return "", errb.Code("LOOKUP_FAILED").Wrap(err)
		}
	}

	now := d.now()
	u := &User{
		ID:        uuid.NewString(),
		Email:     email,
		Status:    cookieauth.AccountConfirmed,
		Profile:   profile,
		Providers: map[string]string{provider: subject},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = d.Backend.InsertUser(ctx, u)
	if errors.Is(err, ErrEmailTaken) {
		// registered since the lookup above
		u.Email = ""
		err = d.Backend.InsertUser(ctx, u)
	}
	if errors.Is(err, ErrProviderTaken) {
		return d.raceWinner(ctx, provider, subject)
	}
	if err != nil {
		return "", errb.Code("INSERT_FAILED").Wrap(err)
	}
	return u.ID, nil
}

// linkedUser returns "" when no user is linked to (provider, subject).
func (d *Driver) linkedUser(ctx context.Context, provider, subject string) (string, error) {
	u, err := d.Backend.FindByProvider(ctx, provider, subject)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// raceWinner returns the user a concurrent sign in linked the identity to.
func (d *Driver) raceWinner(ctx context.Context, provider, subject string) (string, error) {
	errb := oops.In("stores").With("provider", provider)
	id, err := d.linkedUser(ctx, provider, subject)
	if err != nil {
		return "", errb.Code("LOOKUP_FAILED").Wrap(err)
	}
	if id == "" {
		return "", errb.Code("LINK_FAILED").Wrap(ErrProviderTaken)
	}
	return id, nil
}

// GetUser exposes the stored record, for application use.
func (d *Driver) GetUser(ctx context.Context, userID string) (*User, error) {
	return d.Backend.GetUser(ctx, userID)
}
