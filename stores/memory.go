package stores

import (
	"context"
	"maps"
	"sync"
)

// MemoryBackend keeps users in process memory.  Useful for tests and demos.
type MemoryBackend struct {
	mu        sync.RWMutex
	users     map[string]*User
	emails    map[string]string
	providers map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		users:     map[string]*User{},
		emails:    map[string]string{},
		providers: map[string]string{},
	}
}

func cloneUser(u *User) *User {
	out := *u
	out.Profile = maps.Clone(u.Profile)
	out.Providers = maps.Clone(u.Providers)
	return &out
}

func (m *MemoryBackend) InsertUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Email != "" {
		if _, taken := m.emails[EmailKey(u.Email)]; taken {
			return ErrEmailTaken
		}
	}
	if err := m.checkProviders(u); err != nil {
		return err
	}
	if u.Email != "" {
		m.emails[EmailKey(u.Email)] = u.ID
	}
	m.indexProviders(u)
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *MemoryBackend) checkProviders(u *User) error {
	for provider, subject := range u.Providers {
		if owner, ok := m.providers[ProviderKey(provider, subject)]; ok && owner != u.ID {
			return ErrProviderTaken
		}
	}
	return nil
}

func (m *MemoryBackend) indexProviders(u *User) {
	for provider, subject := range u.Providers {
		m.providers[ProviderKey(provider, subject)] = u.ID
	}
}

func (m *MemoryBackend) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(id)
}

func (m *MemoryBackend) get(id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryBackend) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[EmailKey(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.get(id)
}

func (m *MemoryBackend) FindByProvider(ctx context.Context, provider, subject string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.providers[ProviderKey(provider, subject)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.get(id)
}

func (m *MemoryBackend) UpdateUser(ctx context.Context, id string, mutate func(u *User) error) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if err := mutate(u); err != nil {
		return nil, err
	}
	if err := m.checkProviders(u); err != nil {
		return nil, err
	}
	m.indexProviders(u)
	m.users[id] = cloneUser(u)
	return u, nil
}
