package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-core/storage"
)

type userRecord struct {
	user         *storage.User
	passwordHash []byte
}

// UserRepository implements storage.UserRepository and
// storage.ExtraAccessTokenFieldsProvider. A user's Claims become extra
// access token claims.
type UserRepository struct {
	s *Store
}

var (
	_ storage.UserRepository                 = (*UserRepository)(nil)
	_ storage.ExtraAccessTokenFieldsProvider = (*UserRepository)(nil)
)

// Add stores a user with a bcrypt hash of password. An empty password
// creates a user that can only be looked up, never logged in.
func (r *UserRepository) Add(user *storage.User, password string) error {
	if user == nil || user.ID == "" {
		return errors.New("user id is required")
	}

	rec := &userRecord{user: &storage.User{ID: user.ID, Claims: maps.Clone(user.Claims)}}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		rec.passwordHash = hash
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[user.ID] = rec
	return nil
}

// GetUserByCredentials verifies the password for the password grant. For
// every other grant an empty password is a plain lookup.
func (r *UserRepository) GetUserByCredentials(ctx context.Context, identifier, password, grantType string, _ *storage.Client) (*storage.User, error) {
	_, end := r.s.observe(ctx, "get_user")
	defer end(nil)

	r.s.mu.RLock()
	rec, ok := r.s.users[identifier]
	r.s.mu.RUnlock()

	if !ok {
		// Keep timing similar for unknown users
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, nil
	}

	if password == "" && grantType != "password" {
		return rec.user, nil
	}
	if rec.passwordHash == nil {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return nil, nil // a mismatch is reported as no user
	}
	return rec.user, nil
}

// ExtraAccessTokenFields returns a copy of the stored user's claims
func (r *UserRepository) ExtraAccessTokenFields(_ context.Context, user *storage.User) (map[string]any, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if rec, ok := r.s.users[user.ID]; ok {
		return maps.Clone(rec.user.Claims), nil
	}
	return maps.Clone(user.Claims), nil
}
