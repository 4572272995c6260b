package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/storage"
)

// AuthCodeRepository implements storage.AuthCodeRepository.
//
// Key schema:
//
//	{prefix}code:{sha256(code)}          -> JSON(code)
//	{prefix}revoked:code:{sha256(code)}  -> "1" (SET NX)
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
		Scopes: append([]storage.Scope(nil), scopes...),
	}, nil
}

// Persist stores the code until its expiry plus the retention period
func (r *AuthCodeRepository) Persist(ctx context.Context, code *storage.AuthCode) (err error) {
	ctx, end := r.s.observe(ctx, "persist_auth_code")
	defer func() { end(err) }()

	if code == nil || code.Code == "" {
		return errors.New("authorization code id is required")
	}
	if err := validateLength(code.Code, "authorization code"); err != nil {
		return err
	}

	data, err := json.Marshal(toAuthCodeJSON(code))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	ttl := r.s.recordTTL(code.ExpiresAt)
	if err := r.s.client.Do(ctx, r.s.client.B().Set().Key(r.s.codeKey(code.Code)).Value(string(data)).Ex(ttl).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	r.s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"expires_at", code.ExpiresAt)
	return nil
}

// IsRevoked reports whether the code was consumed. Unknown codes count as revoked.
func (r *AuthCodeRepository) IsRevoked(ctx context.Context, code string) (bool, error) {
	if len(code) > MaxIDLength {
		return true, nil
	}

	results := r.s.client.DoMulti(ctx,
		r.s.client.B().Exists().Key(r.s.codeKey(code)).Build(),
		r.s.client.B().Exists().Key(r.s.revokedCodeKey(code)).Build(),
	)
	exists, err := results[0].AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check authorization code: %w", err)
	}
	revoked, err := results[1].AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check authorization code revocation: %w", err)
	}
	return exists == 0 || revoked > 0, nil
}

// GetByIdentifier returns the code, or storage.ErrNotFound
func (r *AuthCodeRepository) GetByIdentifier(ctx context.Context, code string) (authCode *storage.AuthCode, err error) {
	ctx, end := r.s.observe(ctx, "get_auth_code")
	defer func() { end(err) }()

	if err := validateLength(code, "authorization code"); err != nil {
		return nil, err
	}
	j, err := getJSON[authCodeJSON](ctx, r.s, r.s.codeKey(code), "authorization code")
	if err != nil {
		return nil, err
	}
	return fromAuthCodeJSON(j), nil
}

// Revoke marks the code consumed with SET NX, so only one of two concurrent
// redemptions succeeds
func (r *AuthCodeRepository) Revoke(ctx context.Context, code string) (err error) {
	ctx, end := r.s.observe(ctx, "revoke_auth_code")
	defer func() { end(err) }()

	if err := validateLength(code, "authorization code"); err != nil {
		return err
	}
	j, err := getJSON[authCodeJSON](ctx, r.s, r.s.codeKey(code), "authorization code")
	if err != nil {
		return err
	}

	if err := r.s.setOnce(ctx, r.s.revokedCodeKey(code), r.s.recordTTL(fromMillis(j.ExpiresAt)), "authorization code"); err != nil {
		if errors.Is(err, storage.ErrAlreadyRevoked) {
			r.s.logger.Warn("Authorization code reuse detected",
				"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
		}
		return err
	}
	return nil
}
