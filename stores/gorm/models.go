//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"maps"
	"time"

	"github.com/panyam/cookieauth"
	"github.com/panyam/cookieauth/stores"
)

// JSONMap is a helper type for storing JSON maps in GORM
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// UserModel is the GORM model for users.  EmailKey is NULL for users without
// an email so that the unique index ignores them.
type UserModel struct {
	ID           string  `gorm:"primaryKey;size:64"`
	Email        string  `gorm:"size:320"`
	EmailKey     *string `gorm:"size:64;uniqueIndex"`
	PasswordHash string  `gorm:"size:128"`
	Status       string  `gorm:"size:32"`
	Profile      JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Providers []ProviderLinkModel `gorm:"foreignKey:UserID"`
}

func (UserModel) TableName() string {
	return "users"
}

// ProviderLinkModel maps an OAuth identity to a user.
type ProviderLinkModel struct {
	Provider  string `gorm:"primaryKey;size:32"`
	Subject   string `gorm:"primaryKey;size:255"`
	UserID    string `gorm:"size:64;index"`
	CreatedAt time.Time
}

func (ProviderLinkModel) TableName() string {
	return "provider_links"
}

func (m *UserModel) ToUser() *stores.User {
	u := &stores.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Status:       cookieauth.AccountStatus(m.Status),
		Profile:      maps.Clone(map[string]any(m.Profile)),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if len(m.Providers) > 0 {
		u.Providers = make(map[string]string, len(m.Providers))
		for _, p := range m.Providers {
			u.Providers[p.Provider] = p.Subject
		}
	}
	return u
}

func UserToModel(u *stores.User) *UserModel {
	m := &UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Status:       string(u.Status),
		Profile:      JSONMap(u.Profile),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Email != "" {
		key := stores.EmailKey(u.Email)
		m.EmailKey = &key
	}
	return m
}

func providerLinks(u *stores.User) []ProviderLinkModel {
	var out []ProviderLinkModel
	for provider, subject := range u.Providers {
		out = append(out, ProviderLinkModel{Provider: provider, Subject: subject, UserID: u.ID})
	}
	return out
}
