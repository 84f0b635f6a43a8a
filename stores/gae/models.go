//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"

	"github.com/panyam/cookieauth"
	"github.com/panyam/cookieauth/stores"
)

// UserEntity is the Datastore entity for users.  Key name is the user id.
type UserEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Email        string         `datastore:"email,noindex"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	Status       string         `datastore:"status"`
	Profile      []byte         `datastore:"profile,noindex"`   // JSON encoded
	Providers    []byte         `datastore:"providers,noindex"` // JSON encoded
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
	Version      int            `datastore:"version"`
}

// IndexEntity points an email or provider identity at a user.
// Key name is stores.EmailKey or stores.ProviderKey.
type IndexEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	Provider  string         `datastore:"provider,omitempty"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *UserEntity) ToUser() *stores.User {
	u := &stores.User{
		ID:           e.Key.Name,
		Email:        e.Email,
		PasswordHash: e.PasswordHash,
		Status:       cookieauth.AccountStatus(e.Status),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.Profile != nil {
		json.Unmarshal(e.Profile, &u.Profile)
	}
	if e.Providers != nil {
		json.Unmarshal(e.Providers, &u.Providers)
	}
	return u
}

func UserToEntity(u *stores.User, key *datastore.Key, version int) *UserEntity {
	e := &UserEntity{
		Key:          key,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		Version:      version,
	}
	if u.Profile != nil {
		e.Profile, _ = json.Marshal(u.Profile)
	}
	if len(u.Providers) > 0 {
		e.Providers, _ = json.Marshal(u.Providers)
	}
	return e
}
