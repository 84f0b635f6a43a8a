//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/panyam/cookieauth/stores"
)

// Kind constants for Datastore entities
const (
	KindUser         = "User"
	KindEmail        = "Email"
	KindProviderLink = "ProviderLink"
)

// Backend implements stores.Backend using Google Cloud Datastore
type Backend struct {
	client    *datastore.Client
	namespace string
}

var _ stores.Backend = (*Backend)(nil)

// NewBackend creates a new Datastore-backed Backend
func NewBackend(client *datastore.Client, namespace string) *Backend {
	return &Backend{client: client, namespace: namespace}
}

func NewDriver(client *datastore.Client, namespace string) *stores.Driver {
	return stores.NewDriver(NewBackend(client, namespace))
}

func (s *Backend) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Backend) putLinks(tx *datastore.Transaction, u *stores.User) error {
	for provider, subject := range u.Providers {
		key := s.namespacedKey(KindProviderLink, stores.ProviderKey(provider, subject))
		var existing IndexEntity
		err := tx.Get(key, &existing)
		if err == nil {
			if existing.UserID != u.ID {
				return stores.ErrProviderTaken
			}
			continue
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}
		if _, err := tx.Put(key, &IndexEntity{UserID: u.ID, Provider: provider, CreatedAt: time.Now()}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Backend) InsertUser(ctx context.Context, u *stores.User) error {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if u.Email != "" {
			emailKey := s.namespacedKey(KindEmail, stores.EmailKey(u.Email))
			var existing IndexEntity
			err := tx.Get(emailKey, &existing)
			if err == nil {
				return stores.ErrEmailTaken
			}
			if err != datastore.ErrNoSuchEntity {
				return err
			}
			if _, err := tx.Put(emailKey, &IndexEntity{UserID: u.ID, CreatedAt: time.Now()}); err != nil {
				return err
			}
		}
		key := s.namespacedKey(KindUser, u.ID)
		if _, err := tx.Put(key, UserToEntity(u, key, 1)); err != nil {
			return err
		}
		return s.putLinks(tx, u)
	})
	return err
}

func (s *Backend) GetUser(ctx context.Context, id string) (*stores.User, error) {
	var entity UserEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUser, id), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, stores.ErrUserNotFound
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *Backend) lookup(ctx context.Context, key *datastore.Key) (*stores.User, error) {
	var entry IndexEntity
	if err := s.client.Get(ctx, key, &entry); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, stores.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUser(ctx, entry.UserID)
}

func (s *Backend) FindByEmail(ctx context.Context, email string) (*stores.User, error) {
	if email == "" {
		return nil, stores.ErrUserNotFound
	}
	return s.lookup(ctx, s.namespacedKey(KindEmail, stores.EmailKey(email)))
}

func (s *Backend) FindByProvider(ctx context.Context, provider, subject string) (*stores.User, error) {
	return s.lookup(ctx, s.namespacedKey(KindProviderLink, stores.ProviderKey(provider, subject)))
}

func (s *Backend) UpdateUser(ctx context.Context, id string, mutate func(u *stores.User) error) (*stores.User, error) {
	key := s.namespacedKey(KindUser, id)
	var out *stores.User
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return stores.ErrUserNotFound
			}
			return err
		}
		u := entity.ToUser()
		if err := mutate(u); err != nil {
			return err
		}
		if u.ID != id {
			return errors.New("user id cannot change")
		}
		if _, err := tx.Put(key, UserToEntity(u, key, entity.Version+1)); err != nil {
			return err
		}
		out = u
		return s.putLinks(tx, u)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LinkedUsers lists the ids of users linked to provider, for maintenance
// tasks such as revoking a provider.
func (s *Backend) LinkedUsers(ctx context.Context, provider string) ([]string, error) {
	query := datastore.NewQuery(KindProviderLink).
		FilterField("provider", "=", provider)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var ids []string
	it := s.client.Run(ctx, query)
	for {
		var entity IndexEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, entity.UserID)
	}
	return ids, nil
}
