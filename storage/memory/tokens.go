package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-core/storage"
)

// TokenRepository implements storage.TokenRepository, storage.DescendantRevoker
// and storage.AccessTokenLookup
type TokenRepository struct {
	s *Store
}

var (
	_ storage.TokenRepository   = (*TokenRepository)(nil)
	_ storage.DescendantRevoker = (*TokenRepository)(nil)
	_ storage.AccessTokenLookup = (*TokenRepository)(nil)
)

// IssueToken returns an unpersisted token with a random UUID access token id
func (r *TokenRepository) IssueToken(_ context.Context, client *storage.Client, scopes []storage.Scope, user *storage.User) (*storage.Token, error) {
	return &storage.Token{
		AccessToken: uuid.NewString(),
		Client:      client,
		User:        user,
		Scopes:      cloneScopes(scopes),
	}, nil
}

// IssueRefreshToken attaches and persists a refresh token. Clients whose
// AllowedGrants exclude refresh_token get none.
func (r *TokenRepository) IssueRefreshToken(ctx context.Context, token *storage.Token, client *storage.Client) (*storage.Token, error) {
	if client != nil && len(client.AllowedGrants) > 0 && !client.AllowsGrant("refresh_token") {
		return token, nil
	}

	token.RefreshToken = oauth2.GenerateVerifier()
	token.RefreshTokenExpiresAt = r.s.now().Add(r.s.refreshTTL)
	if err := r.Persist(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Persist stores a copy of token, indexed by its access and refresh tokens
func (r *TokenRepository) Persist(ctx context.Context, token *storage.Token) error {
	_, end := r.s.observe(ctx, "persist_token")

	if token == nil || token.AccessToken == "" {
		err := errors.New("token with an access token id is required")
		end(err)
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if prev, ok := r.s.tokens[token.AccessToken]; ok && prev.RefreshToken != "" && prev.RefreshToken != token.RefreshToken {
		delete(r.s.refreshIndex, prev.RefreshToken)
	}
	r.s.tokens[token.AccessToken] = cloneToken(token)
	if token.RefreshToken != "" {
		r.s.refreshIndex[token.RefreshToken] = token.AccessToken
	}
	end(nil)
	return nil
}

// Revoke forces both expiries of the stored token into the past
func (r *TokenRepository) Revoke(ctx context.Context, token *storage.Token) error {
	_, end := r.s.observe(ctx, "revoke_token")

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	err := r.revokeLocked(token.AccessToken)
	end(err)
	return err
}

func (r *TokenRepository) revokeLocked(accessToken string) error {
	stored, ok := r.s.tokens[accessToken]
	if !ok {
		return fmt.Errorf("token: %w", storage.ErrNotFound)
	}
	if r.s.revokedTokens[accessToken] {
		return storage.ErrAlreadyRevoked
	}

	past := r.s.now().Add(-time.Second)
	stored.AccessTokenExpiresAt = past
	if stored.RefreshToken != "" {
		stored.RefreshTokenExpiresAt = past
	}
	r.s.revokedTokens[accessToken] = true
	return nil
}

// IsRefreshTokenRevoked reports whether the token was revoked or is unknown
func (r *TokenRepository) IsRefreshTokenRevoked(_ context.Context, token *storage.Token) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	accessToken, ok := r.s.refreshIndex[token.RefreshToken]
	if !ok {
		return true, nil
	}
	return r.s.revokedTokens[accessToken], nil
}

// GetByRefreshToken returns a copy of the token owning refreshToken
func (r *TokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*storage.Token, error) {
	_, end := r.s.observe(ctx, "get_token_by_refresh")
	defer end(nil)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	accessToken, ok := r.s.refreshIndex[refreshToken]
	if !ok {
		return nil, fmt.Errorf("refresh token: %w", storage.ErrNotFound)
	}
	return cloneToken(r.s.tokens[accessToken]), nil
}

// GetByAccessToken returns a copy of the token with the given access token id
func (r *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (*storage.Token, error) {
	_, end := r.s.observe(ctx, "get_token_by_access")
	defer end(nil)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	token, ok := r.s.tokens[accessToken]
	if !ok {
		return nil, fmt.Errorf("access token: %w", storage.ErrNotFound)
	}
	return cloneToken(token), nil
}

// RevokeDescendantsOf revokes every token issued from authCodeID, including
// tokens obtained by refreshing them
func (r *TokenRepository) RevokeDescendantsOf(ctx context.Context, authCodeID string) error {
	_, end := r.s.observe(ctx, "revoke_descendants")
	defer end(nil)

	if authCodeID == "" {
		return nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	revoked := 0
	for id, token := range r.s.tokens {
		if token.OriginatingAuthCodeID != authCodeID || r.s.revokedTokens[id] {
			continue
		}
		if err := r.revokeLocked(id); err == nil {
			revoked++
		}
	}
	r.s.logger.Info("Revoked tokens issued from authorization code", "count", revoked)
	return nil
}

// IsRevoked reports whether the token with the given access token id was revoked.
// Unknown tokens count as revoked.
func (r *TokenRepository) IsRevoked(accessToken string) bool {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.tokens[accessToken]; !ok {
		return true
	}
	return r.s.revokedTokens[accessToken]
}
