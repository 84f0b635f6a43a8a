package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/panyam/cookieauth/stores"
)

// indexEntry points an email or provider identity at a user.
type indexEntry struct {
	UserID string `json:"user_id"`
}

// Backend implements stores.Backend with one JSON file per record.
//
// # File Structure
//
//	{StoragePath}/
//	├── users/<id>.json          # the stores.User record
//	├── emails/<sha256>.json     # {"user_id": ...}, keyed by stores.EmailKey
//	└── providers/<key>.json     # {"user_id": ...}, keyed by stores.ProviderKey
//
// # Concurrency Model
//
// Every write goes through writeAtomicFile and a process wide mutex.  Two
// processes sharing one StoragePath are not supported.
type Backend struct {
	StoragePath string
	mu          sync.Mutex
}

var _ stores.Backend = (*Backend)(nil)

func NewBackend(storagePath string) *Backend {
	return &Backend{StoragePath: storagePath}
}

// NewDriver is shorthand for stores.NewDriver(NewBackend(storagePath)).
func NewDriver(storagePath string) *stores.Driver {
	return stores.NewDriver(NewBackend(storagePath))
}

func (s *Backend) userPath(id string) string {
	// filepath.Base prevents path traversal
	return filepath.Join(s.StoragePath, "users", filepath.Base(id)+".json")
}

func (s *Backend) emailPath(email string) string {
	return filepath.Join(s.StoragePath, "emails", stores.EmailKey(email)+".json")
}

func (s *Backend) providerPath(provider, subject string) string {
	return filepath.Join(s.StoragePath, "providers", stores.ProviderKey(provider, subject)+".json")
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *Backend) InsertUser(ctx context.Context, u *stores.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Email != "" {
		if _, err := os.Stat(s.emailPath(u.Email)); err == nil {
			return stores.ErrEmailTaken
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	if err := s.checkProviders(u); err != nil {
		return err
	}
	if err := writeJSON(s.userPath(u.ID), u); err != nil {
		return fmt.Errorf("writing user %s: %w", u.ID, err)
	}
	if u.Email != "" {
		if err := writeJSON(s.emailPath(u.Email), indexEntry{UserID: u.ID}); err != nil {
			return fmt.Errorf("indexing email: %w", err)
		}
	}
	return s.indexProviders(u)
}

// checkProviders fails with stores.ErrProviderTaken when an identity in
// u.Providers is indexed to another user.
func (s *Backend) checkProviders(u *stores.User) error {
	for provider, subject := range u.Providers {
		var entry indexEntry
		err := readJSON(s.providerPath(provider, subject), &entry)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return err
		case entry.UserID != u.ID:
			return stores.ErrProviderTaken
		}
	}
	return nil
}

func (s *Backend) indexProviders(u *stores.User) error {
	for provider, subject := range u.Providers {
		path := s.providerPath(provider, subject)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := writeJSON(path, indexEntry{UserID: u.ID}); err != nil {
			return fmt.Errorf("indexing provider %s: %w", provider, err)
		}
	}
	return nil
}

func (s *Backend) GetUser(ctx context.Context, id string) (*stores.User, error) {
	var u stores.User
	if err := readJSON(s.userPath(id), &u); err != nil {
		if os.IsNotExist(err) {
			return nil, stores.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Backend) lookup(ctx context.Context, path string) (*stores.User, error) {
	var entry indexEntry
	if err := readJSON(path, &entry); err != nil {
		if os.IsNotExist(err) {
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
	return s.lookup(ctx, s.emailPath(email))
}

func (s *Backend) FindByProvider(ctx context.Context, provider, subject string) (*stores.User, error) {
	return s.lookup(ctx, s.providerPath(provider, subject))
}

func (s *Backend) UpdateUser(ctx context.Context, id string, mutate func(u *stores.User) error) (*stores.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(u); err != nil {
		return nil, err
	}
	if u.ID != id {
		return nil, errors.New("user id cannot change")
	}
	if err := s.checkProviders(u); err != nil {
		return nil, err
	}
	if err := writeJSON(s.userPath(id), u); err != nil {
		return nil, fmt.Errorf("writing user %s: %w", id, err)
	}
	return u, s.indexProviders(u)
}
