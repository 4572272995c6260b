package memory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-core/storage"
)

// AuthCodeRepository implements storage.AuthCodeRepository
type AuthCodeRepository struct {
	s *Store
}

var _ storage.AuthCodeRepository = (*AuthCodeRepository)(nil)

// IssueAuthCode returns an unpersisted code with a 256-bit random identifier
func (r *AuthCodeRepository) IssueAuthCode(_ context.Context, client *storage.Client, user *storage.User, scopes []storage.Scope) (*storage.AuthCode, error) {
	return &storage.AuthCode{
		Code:   oauth2.GenerateVerifier(),
		Client: client,
		User:   user,
		Scopes: cloneScopes(scopes),
	}, nil
}

// Persist stores a copy of code
func (r *AuthCodeRepository) Persist(ctx context.Context, code *storage.AuthCode) error {
	_, end := r.s.observe(ctx, "persist_auth_code")

	if code == nil || code.Code == "" {
		err := errors.New("authorization code id is required")
		end(err)
		return err
	}

	stored := *code
	stored.Scopes = cloneScopes(code.Scopes)
	stored.Audience = append([]string(nil), code.Audience...)

	r.s.mu.Lock()
	r.s.authCodes[code.Code] = &stored
	r.s.mu.Unlock()

	end(nil)
	return nil
}

// IsRevoked reports whether the code was consumed. Unknown codes count as revoked.
func (r *AuthCodeRepository) IsRevoked(_ context.Context, code string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, ok := r.s.authCodes[code]; !ok {
		return true, nil
	}
	return r.s.revokedCodes[code], nil
}

// GetByIdentifier returns a copy of the code
func (r *AuthCodeRepository) GetByIdentifier(ctx context.Context, code string) (*storage.AuthCode, error) {
	_, end := r.s.observe(ctx, "get_auth_code")
	defer end(nil)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored, ok := r.s.authCodes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code: %w", storage.ErrNotFound)
	}
	c := *stored
	c.Scopes = cloneScopes(stored.Scopes)
	return &c, nil
}

// Revoke marks the code consumed. The check and the update happen under one
// lock, so only one of two concurrent redemptions succeeds.
func (r *AuthCodeRepository) Revoke(ctx context.Context, code string) error {
	_, end := r.s.observe(ctx, "revoke_auth_code")

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var err error
	switch {
	case r.s.authCodes[code] == nil:
		err = fmt.Errorf("authorization code: %w", storage.ErrNotFound)
	case r.s.revokedCodes[code]:
		err = storage.ErrAlreadyRevoked
	default:
		r.s.revokedCodes[code] = true
	}
	end(err)
	return err
}
