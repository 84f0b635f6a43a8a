// Package storestest checks that a stores.Backend behaves like the others.
package storestest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/cookieauth"
	"github.com/panyam/cookieauth/stores"
)

func newUser(id, email string) *stores.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &stores.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hash-" + id,
		Status:       cookieauth.AccountUnconfirmed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RunBackendTests exercises every Backend method against fresh backends
// from newBackend.
func RunBackendTests(t *testing.T, newBackend func(t *testing.T) stores.Backend) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.InsertUser(ctx, newUser("u1", "a@example.com")))

		got, err := b.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", got.Email)
		assert.Equal(t, "hash-u1", got.PasswordHash)
		assert.Equal(t, cookieauth.AccountUnconfirmed, got.Status)

		_, err = b.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, stores.ErrUserNotFound)
	})

	t.Run("email is unique", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.InsertUser(ctx, newUser("u1", "a@example.com")))
		assert.ErrorIs(t, b.InsertUser(ctx, newUser("u2", "a@example.com")), stores.ErrEmailTaken)

		got, err := b.FindByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)

		_, err = b.FindByEmail(ctx, "b@example.com")
		assert.ErrorIs(t, err, stores.ErrUserNotFound)
	})

	t.Run("users without email", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.InsertUser(ctx, newUser("u1", "")))
		require.NoError(t, b.InsertUser(ctx, newUser("u2", "")))
		_, err := b.FindByEmail(ctx, "")
		assert.ErrorIs(t, err, stores.ErrUserNotFound)
	})

	t.Run("providers", func(t *testing.T) {
		b := newBackend(t)
		u := newUser("u1", "")
		u.Providers = map[string]string{"github": "42"}
		require.NoError(t, b.InsertUser(ctx, u))

		got, err := b.FindByProvider(ctx, "github", "42")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)

		_, err = b.FindByProvider(ctx, "google", "42")
		assert.ErrorIs(t, err, stores.ErrUserNotFound)

		_, err = b.UpdateUser(ctx, "u1", func(u *stores.User) error {
			u.Providers["google"] = "g-7"
			return nil
		})
		require.NoError(t, err)
		got, err = b.FindByProvider(ctx, "google", "g-7")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
	})

	t.Run("provider identity is unique", func(t *testing.T) {
		b := newBackend(t)
		u1 := newUser("u1", "")
		u1.Providers = map[string]string{"github": "42"}
		require.NoError(t, b.InsertUser(ctx, u1))

		u2 := newUser("u2", "b@example.com")
		u2.Providers = map[string]string{"github": "42"}
		assert.ErrorIs(t, b.InsertUser(ctx, u2), stores.ErrProviderTaken)
		_, err := b.GetUser(ctx, "u2")
		assert.ErrorIs(t, err, stores.ErrUserNotFound, "nothing written")
		_, err = b.FindByEmail(ctx, "b@example.com")
		assert.ErrorIs(t, err, stores.ErrUserNotFound)

		require.NoError(t, b.InsertUser(ctx, newUser("u3", "")))
		_, err = b.UpdateUser(ctx, "u3", func(u *stores.User) error {
			u.Providers = map[string]string{"github": "42"}
			return nil
		})
		assert.ErrorIs(t, err, stores.ErrProviderTaken)

		got, err := b.FindByProvider(ctx, "github", "42")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
		got, err = b.GetUser(ctx, "u3")
		require.NoError(t, err)
		assert.Empty(t, got.Providers)
	})

	t.Run("update", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.InsertUser(ctx, newUser("u1", "a@example.com")))

		updated, err := b.UpdateUser(ctx, "u1", func(u *stores.User) error {
			u.Status = cookieauth.AccountConfirmed
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, cookieauth.AccountConfirmed, updated.Status)

		got, err := b.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, cookieauth.AccountConfirmed, got.Status)

		_, err = b.UpdateUser(ctx, "missing", func(u *stores.User) error { return nil })
		assert.ErrorIs(t, err, stores.ErrUserNotFound)
	})

	t.Run("failed mutation is not saved", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.InsertUser(ctx, newUser("u1", "a@example.com")))

		_, err := b.UpdateUser(ctx, "u1", func(u *stores.User) error {
			u.PasswordHash = "changed"
			return cookieauth.ErrAuthenticationFailed
		})
		assert.ErrorIs(t, err, cookieauth.ErrAuthenticationFailed)

		got, err := b.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "hash-u1", got.PasswordHash)
	})
}
