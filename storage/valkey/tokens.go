package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	valkeygo "github.com/valkey-io/valkey-go"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/storage"
)

// TokenRepository implements storage.TokenRepository, storage.DescendantRevoker
// and storage.AccessTokenLookup.
//
// Key schema:
//
//	{prefix}token:{accessToken}          -> JSON(token)
//	{prefix}refresh:{sha256(refresh)}    -> accessToken
//	{prefix}revoked:token:{accessToken}  -> "1" (SET NX)
//	{prefix}code:tokens:{sha256(code)}   -> SET of accessTokens
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
		Scopes:      append([]storage.Scope(nil), scopes...),
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

// Persist stores the token with its refresh index and, for tokens issued
// from an authorization code, adds it to the code's descendant set
func (r *TokenRepository) Persist(ctx context.Context, token *storage.Token) (err error) {
	ctx, end := r.s.observe(ctx, "persist_token")
	defer func() { end(err) }()

	if token == nil || token.AccessToken == "" {
		return errors.New("token with an access token id is required")
	}
	if err := validateLength(token.AccessToken, "access token"); err != nil {
		return err
	}

	record := &tokenJSON{
		AccessToken:           token.AccessToken,
		AccessTokenExpiresAt:  toMillis(token.AccessTokenExpiresAt),
		RefreshTokenExpiresAt: toMillis(token.RefreshTokenExpiresAt),
		Client:                toClientJSON(token.Client, false),
		User:                  toUserJSON(token.User),
		Scopes:                toScopesJSON(token.Scopes),
		OriginatingAuthCodeID: token.OriginatingAuthCodeID,
	}
	if token.RefreshToken != "" {
		if record.RefreshToken, err = r.s.encryptor.Seal(token.RefreshToken); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	ttl := r.s.recordTTL(token.AccessTokenExpiresAt, token.RefreshTokenExpiresAt)
	cmds := []valkeygo.Completed{
		r.s.client.B().Set().Key(r.s.tokenKey(token.AccessToken)).Value(string(data)).Ex(ttl).Build(),
	}
	if token.RefreshToken != "" {
		cmds = append(cmds, r.s.client.B().Set().Key(r.s.refreshKey(token.RefreshToken)).Value(token.AccessToken).Ex(ttl).Build())
	}
	if token.OriginatingAuthCodeID != "" {
		setKey := r.s.codeTokensKey(token.OriginatingAuthCodeID)
		cmds = append(cmds,
			r.s.client.B().Sadd().Key(setKey).Member(token.AccessToken).Build(),
			r.s.client.B().Expire().Key(setKey).Seconds(int64(ttl.Seconds())).Build(),
		)
	}

	for _, resp := range r.s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
	}

	r.s.logger.Debug("Saved token",
		"token_prefix", util.SafeTruncate(token.AccessToken, tokenIDLogLength),
		"has_refresh_token", token.RefreshToken != "")
	return nil
}

// Revoke marks the token revoked with SET NX, so only the first of several
// concurrent revocations (or refresh rotations) succeeds
func (r *TokenRepository) Revoke(ctx context.Context, token *storage.Token) (err error) {
	ctx, end := r.s.observe(ctx, "revoke_token")
	defer func() { end(err) }()

	return r.revoke(ctx, token.AccessToken)
}

func (r *TokenRepository) revoke(ctx context.Context, accessToken string) error {
	record, err := getJSON[tokenJSON](ctx, r.s, r.s.tokenKey(accessToken), "token")
	if err != nil {
		return err
	}

	ttl := r.s.recordTTL(fromMillis(record.AccessTokenExpiresAt), fromMillis(record.RefreshTokenExpiresAt))
	return r.s.setOnce(ctx, r.s.revokedTokenKey(accessToken), ttl, "token")
}

// IsRefreshTokenRevoked reports whether the token was revoked or is unknown
func (r *TokenRepository) IsRefreshTokenRevoked(ctx context.Context, token *storage.Token) (bool, error) {
	accessToken, err := r.s.client.Do(ctx, r.s.client.B().Get().Key(r.s.refreshKey(token.RefreshToken)).Build()).ToString()
	if isNilError(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	revoked, err := r.s.client.Do(ctx, r.s.client.B().Exists().Key(r.s.revokedTokenKey(accessToken)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked > 0, nil
}

// GetByRefreshToken returns the token owning refreshToken
func (r *TokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (token *storage.Token, err error) {
	ctx, end := r.s.observe(ctx, "get_token_by_refresh")
	defer func() { end(err) }()

	accessToken, err := r.s.client.Do(ctx, r.s.client.B().Get().Key(r.s.refreshKey(refreshToken)).Build()).ToString()
	if isNilError(err) {
		return nil, fmt.Errorf("refresh token: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	return r.load(ctx, accessToken)
}

// GetByAccessToken returns the token with the given access token id
func (r *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (token *storage.Token, err error) {
	ctx, end := r.s.observe(ctx, "get_token_by_access")
	defer func() { end(err) }()

	if err := validateLength(accessToken, "access token"); err != nil {
		return nil, err
	}
	return r.load(ctx, accessToken)
}

// load reads a token record. Revoked tokens come back with both expiries in
// the past.
func (r *TokenRepository) load(ctx context.Context, accessToken string) (*storage.Token, error) {
	record, err := getJSON[tokenJSON](ctx, r.s, r.s.tokenKey(accessToken), "token")
	if err != nil {
		return nil, err
	}

	token := &storage.Token{
		AccessToken:           record.AccessToken,
		AccessTokenExpiresAt:  fromMillis(record.AccessTokenExpiresAt),
		RefreshTokenExpiresAt: fromMillis(record.RefreshTokenExpiresAt),
		Client:                fromClientJSON(record.Client),
		User:                  fromUserJSON(record.User),
		Scopes:                fromScopesJSON(record.Scopes),
		OriginatingAuthCodeID: record.OriginatingAuthCodeID,
	}
	if record.RefreshToken != "" {
		if token.RefreshToken, err = r.s.encryptor.Open(record.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}

	revoked, err := r.s.client.Do(ctx, r.s.client.B().Exists().Key(r.s.revokedTokenKey(accessToken)).Build()).AsInt64()
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked > 0 {
		past := r.s.now().Add(-time.Second)
		token.AccessTokenExpiresAt = past
		if token.RefreshToken != "" {
			token.RefreshTokenExpiresAt = past
		}
	}
	return token, nil
}

// RevokeDescendantsOf revokes every token issued from authCodeID, including
// tokens obtained by refreshing them
func (r *TokenRepository) RevokeDescendantsOf(ctx context.Context, authCodeID string) (err error) {
	ctx, end := r.s.observe(ctx, "revoke_descendants")
	defer func() { end(err) }()

	if authCodeID == "" {
		return nil
	}

	accessTokens, err := r.s.client.Do(ctx, r.s.client.B().Smembers().Key(r.s.codeTokensKey(authCodeID)).Build()).AsStrSlice()
	if err != nil {
		if isNilError(err) {
			return nil
		}
		return fmt.Errorf("failed to list tokens issued from authorization code: %w", err)
	}

	revoked := 0
	for _, accessToken := range accessTokens {
		switch err := r.revoke(ctx, accessToken); {
		case err == nil:
			revoked++
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrAlreadyRevoked):
		default:
			return err
		}
	}

	r.s.logger.Info("Revoked tokens issued from authorization code", "count", revoked)
	return nil
}
