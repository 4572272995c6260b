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

// maxUserCodeAttempts bounds retries when a generated user code collides
const maxUserCodeAttempts = 10

// DeviceCodeRepository implements storage.DeviceCodeRepository.
//
// Key schema:
//
//	{prefix}device:{sha256(deviceCode)}          -> JSON(session)
//	{prefix}usercode:{normalized user code}      -> deviceCode
//	{prefix}revoked:device:{sha256(deviceCode)}  -> "1" (SET NX)
//
// Persist rewrites the session JSON on every poll. A redeemed session is
// recognized by its revocation key, so a late poll cannot resurrect it.
type DeviceCodeRepository struct {
	s *Store
}

var _ storage.DeviceCodeRepository = (*DeviceCodeRepository)(nil)

// IssueDeviceCode returns an unpersisted session with a random device code
// and a user code not currently in use
func (r *DeviceCodeRepository) IssueDeviceCode(ctx context.Context, client *storage.Client, scopes []storage.Scope) (*storage.DeviceCode, error) {
	for range maxUserCodeAttempts {
		userCode, err := util.GenerateUserCode()
		if err != nil {
			return nil, err
		}

		taken, err := r.s.client.Do(ctx, r.s.client.B().Exists().Key(r.s.userCodeKey(util.NormalizeUserCode(userCode))).Build()).AsInt64()
		if err != nil {
			return nil, fmt.Errorf("failed to check user code: %w", err)
		}
		if taken > 0 {
			continue
		}

		return &storage.DeviceCode{
			DeviceCode: oauth2.GenerateVerifier(),
			UserCode:   userCode,
			Client:     client,
			Scopes:     append([]storage.Scope(nil), scopes...),
			Status:     storage.DeviceCodePending,
		}, nil
	}
	return nil, errors.New("failed to generate a unique user code")
}

// Persist stores the session and its user code index until the session
// expires plus the retention period
func (r *DeviceCodeRepository) Persist(ctx context.Context, code *storage.DeviceCode) (err error) {
	ctx, end := r.s.observe(ctx, "persist_device_code")
	defer func() { end(err) }()

	if code == nil || code.DeviceCode == "" || code.UserCode == "" {
		return errors.New("device code and user code are required")
	}
	if err := validateLength(code.DeviceCode, "device code"); err != nil {
		return err
	}

	data, err := json.Marshal(toDeviceCodeJSON(code))
	if err != nil {
		return fmt.Errorf("failed to marshal device code: %w", err)
	}

	ttl := r.s.recordTTL(code.ExpiresAt)
	results := r.s.client.DoMulti(ctx,
		r.s.client.B().Set().Key(r.s.deviceKey(code.DeviceCode)).Value(string(data)).Ex(ttl).Build(),
		r.s.client.B().Set().Key(r.s.userCodeKey(util.NormalizeUserCode(code.UserCode))).Value(code.DeviceCode).Ex(ttl).Build(),
	)
	for _, resp := range results {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to save device code: %w", err)
		}
	}

	r.s.logger.Debug("Saved device code",
		"device_code_prefix", util.SafeTruncate(code.DeviceCode, tokenIDLogLength),
		"status", code.Status)
	return nil
}

// GetByDeviceCode returns the session, or storage.ErrNotFound
func (r *DeviceCodeRepository) GetByDeviceCode(ctx context.Context, deviceCode string) (code *storage.DeviceCode, err error) {
	ctx, end := r.s.observe(ctx, "get_device_code")
	defer func() { end(err) }()

	if err := validateLength(deviceCode, "device code"); err != nil {
		return nil, err
	}
	return r.load(ctx, deviceCode)
}

// GetByUserCode finds a session by user code, ignoring case and dashes
func (r *DeviceCodeRepository) GetByUserCode(ctx context.Context, userCode string) (code *storage.DeviceCode, err error) {
	ctx, end := r.s.observe(ctx, "get_device_code_by_user_code")
	defer func() { end(err) }()

	normalized := util.NormalizeUserCode(userCode)
	if err := validateLength(normalized, "user code"); err != nil {
		return nil, err
	}

	deviceCode, err := r.s.client.Do(ctx, r.s.client.B().Get().Key(r.s.userCodeKey(normalized)).Build()).ToString()
	if isNilError(err) {
		return nil, fmt.Errorf("user code: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user code: %w", err)
	}
	return r.load(ctx, deviceCode)
}

// load reads a session, reporting it redeemed when its revocation key exists
func (r *DeviceCodeRepository) load(ctx context.Context, deviceCode string) (*storage.DeviceCode, error) {
	j, err := getJSON[deviceCodeJSON](ctx, r.s, r.s.deviceKey(deviceCode), "device code")
	if err != nil {
		return nil, err
	}
	code := fromDeviceCodeJSON(j)

	redeemed, err := r.s.client.Do(ctx, r.s.client.B().Exists().Key(r.s.redeemedDeviceKey(deviceCode)).Build()).AsInt64()
	if err != nil {
		return nil, fmt.Errorf("failed to check device code redemption: %w", err)
	}
	if redeemed > 0 {
		code.Status = storage.DeviceCodeRedeemed
	}
	return code, nil
}

// Revoke marks the session redeemed with SET NX
func (r *DeviceCodeRepository) Revoke(ctx context.Context, deviceCode string) (err error) {
	ctx, end := r.s.observe(ctx, "revoke_device_code")
	defer func() { end(err) }()

	if err := validateLength(deviceCode, "device code"); err != nil {
		return err
	}
	j, err := getJSON[deviceCodeJSON](ctx, r.s, r.s.deviceKey(deviceCode), "device code")
	if err != nil {
		return err
	}
	return r.s.setOnce(ctx, r.s.redeemedDeviceKey(deviceCode), r.s.recordTTL(fromMillis(j.ExpiresAt)), "device code")
}
