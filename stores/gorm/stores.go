//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/panyam/cookieauth/stores"
)

// AutoMigrate runs database migrations for all cookieauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&ProviderLinkModel{},
	)
}

// Backend implements stores.Backend using GORM
type Backend struct {
	db *gorm.DB
}

var _ stores.Backend = (*Backend)(nil)

func NewBackend(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// NewDriver migrates db and returns a driver on top of it.
func NewDriver(db *gorm.DB) (*stores.Driver, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return stores.NewDriver(NewBackend(db)), nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return stores.ErrUserNotFound
	}
	return err
}

func (s *Backend) InsertUser(ctx context.Context, u *stores.User) error {
	model := UserToModel(u)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if model.EmailKey != nil {
			var count int64
			if err := tx.Model(&UserModel{}).Where("email_key = ?", *model.EmailKey).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return stores.ErrEmailTaken
			}
		}
		if err := tx.Omit("Providers").Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return stores.ErrEmailTaken
			}
			return err
		}
		return linkProviders(tx, u)
	})
}

// linkProviders creates the missing links of u.  A link owned by another user
// fails the transaction with stores.ErrProviderTaken.
func linkProviders(tx *gorm.DB, u *stores.User) error {
	for _, link := range providerLinks(u) {
		var existing ProviderLinkModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&existing, "provider = ? AND subject = ?", link.Provider, link.Subject).Error
		switch {
		case err == nil:
			if existing.UserID != u.ID {
				return stores.ErrProviderTaken
			}
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if err := tx.Create(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return stores.ErrProviderTaken
			}
			return err
		}
	}
	return nil
}

func (s *Backend) first(db *gorm.DB, query string, args ...any) (*stores.User, error) {
	var model UserModel
	if err := db.Preload("Providers").First(&model, append([]any{query}, args...)...).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToUser(), nil
}

func (s *Backend) GetUser(ctx context.Context, id string) (*stores.User, error) {
	return s.first(s.db.WithContext(ctx), "id = ?", id)
}

func (s *Backend) FindByEmail(ctx context.Context, email string) (*stores.User, error) {
	if email == "" {
		return nil, stores.ErrUserNotFound
	}
	return s.first(s.db.WithContext(ctx), "email_key = ?", stores.EmailKey(email))
}

func (s *Backend) FindByProvider(ctx context.Context, provider, subject string) (*stores.User, error) {
	var link ProviderLinkModel
	err := s.db.WithContext(ctx).First(&link, "provider = ? AND subject = ?", provider, subject).Error
	if err != nil {
		return nil, notFound(err)
	}
	return s.GetUser(ctx, link.UserID)
}

func (s *Backend) UpdateUser(ctx context.Context, id string, mutate func(u *stores.User) error) (*stores.User, error) {
	var out *stores.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
		if err != nil {
			return err
		}
		if err := mutate(u); err != nil {
			return err
		}
		model := UserToModel(u)
		model.ID = id
		if err := tx.Omit("Providers").Save(model).Error; err != nil {
			return err
		}
		out = u
		return linkProviders(tx, u)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
