package store

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/pitabwire/karani/model"
)

// MemoryUserStore is a mutex-guarded in-memory UserStore. It backs the
// memory driver and the test suites, and enforces the same uniqueness
// constraints the SQL schema declares.
type MemoryUserStore struct {
	mu       sync.RWMutex
	users    map[string]model.User
	admins   map[string]model.Admin
	accounts map[string]model.Account
}

// NewMemoryUserStore creates an empty in-memory store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:    make(map[string]model.User),
		admins:   make(map[string]model.Admin),
		accounts: make(map[string]model.Account),
	}
}

// PutUser inserts or replaces a user. Seed helper for tests and local runs.
func (s *MemoryUserStore) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutAdmin inserts or replaces an admin role record.
func (s *MemoryUserStore) PutAdmin(a model.Admin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[a.ID] = a
}

// PutAccount inserts or replaces an account role record.
func (s *MemoryUserStore) PutAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

// GetUser returns a copy of the stored user, for test assertions.
func (s *MemoryUserStore) GetUser(id string) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// GetAdmin returns a copy of the stored admin record, for test assertions.
func (s *MemoryUserStore) GetAdmin(id string) (model.Admin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[id]
	return a, ok
}

// GetAccount returns a copy of the stored account record, for test assertions.
func (s *MemoryUserStore) GetAccount(id string) (model.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	return a, ok
}

// FindByUsername returns the user holding username, excluding excludeID.
func (s *MemoryUserStore) FindByUsername(_ context.Context, username, excludeID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID != excludeID && u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

// FindByEmail returns the user holding email, excluding excludeID.
func (s *MemoryUserStore) FindByEmail(_ context.Context, email, excludeID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID != excludeID && u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

// UpdateUser applies patch to the user in one write.
func (s *MemoryUserStore) UpdateUser(_ context.Context, id string, patch UserPatch) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}

	// The write itself is the authoritative uniqueness check.
	for _, other := range s.users {
		if other.ID == id {
			continue
		}
		if other.Username == patch.Username {
			return nil, &ConflictError{Field: "username"}
		}
		if other.Email == patch.Email {
			return nil, &ConflictError{Field: "email"}
		}
	}

	u.IsActive = patch.IsActive
	u.Username = patch.Username
	u.Email = patch.Email
	u.Search = patch.Search
	s.users[id] = u

	out := u
	return &out, nil
}

// SetPassword persists the password hash.
func (s *MemoryUserStore) SetPassword(_ context.Context, id, hash string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	u.PasswordHash = hash
	s.users[id] = u

	out := u
	return &out, nil
}

// UpdateAdmin mirrors the parent user's id and name into the admin record.
func (s *MemoryUserStore) UpdateAdmin(_ context.Context, adminID string, ref model.UserRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admins[adminID]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("admin record %q not found", adminID))
	}
	a.User = ref
	s.admins[adminID] = a
	return nil
}

// UpdateAccount mirrors the parent user's id and name into the account record.
func (s *MemoryUserStore) UpdateAccount(_ context.Context, accountID string, ref model.UserRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("account record %q not found", accountID))
	}
	a.User = ref
	s.accounts[accountID] = a
	return nil
}

// RemoveAccountForUser removes the account record referencing userID, if any.
func (s *MemoryUserStore) RemoveAccountForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.accounts {
		if a.User.ID == userID {
			delete(s.accounts, id)
		}
	}
	return nil
}

// RemoveUser removes the user record, if any.
func (s *MemoryUserStore) RemoveUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// Populate resolves role references into display names.
func (s *MemoryUserStore) Populate(_ context.Context, user *model.User) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := *user
	if out.Roles.AdminID != "" {
		if a, ok := s.admins[out.Roles.AdminID]; ok {
			out.AdminName = a.Name
		}
	}
	if out.Roles.AccountID != "" {
		if a, ok := s.accounts[out.Roles.AccountID]; ok {
			out.AccountName = a.Name
		}
	}
	return &out, nil
}

// EncryptPassword hashes a plaintext password. The memory store uses the
// minimum bcrypt cost; it exists for tests and local runs, not production.
func (s *MemoryUserStore) EncryptPassword(_ context.Context, plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	return string(hash), nil
}

// Len returns the number of users. For testing.
func (s *MemoryUserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryUserStore) HealthCheck(_ context.Context) error {
	return nil
}
