package memory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/storage"
)

// DeviceCodeRepository implements storage.DeviceCodeRepository
type DeviceCodeRepository struct {
	s *Store
}

var _ storage.DeviceCodeRepository = (*DeviceCodeRepository)(nil)

// IssueDeviceCode returns an unpersisted session with a random device code
// and a human-friendly user code such as "BDFG-HJKL"
func (r *DeviceCodeRepository) IssueDeviceCode(_ context.Context, client *storage.Client, scopes []storage.Scope) (*storage.DeviceCode, error) {
	for range 10 {
		userCode, err := util.GenerateUserCode()
		if err != nil {
			return nil, err
		}

		r.s.mu.RLock()
		_, taken := r.s.userCodeIndex[util.NormalizeUserCode(userCode)]
		r.s.mu.RUnlock()
		if taken {
			continue
		}

		return &storage.DeviceCode{
			DeviceCode: oauth2.GenerateVerifier(),
			UserCode:   userCode,
			Client:     client,
			Scopes:     cloneScopes(scopes),
			Status:     storage.DeviceCodePending,
		}, nil
	}
	return nil, errors.New("failed to generate a unique user code")
}

// Persist stores a copy of code
func (r *DeviceCodeRepository) Persist(ctx context.Context, code *storage.DeviceCode) error {
	_, end := r.s.observe(ctx, "persist_device_code")

	if code == nil || code.DeviceCode == "" || code.UserCode == "" {
		err := errors.New("device code and user code are required")
		end(err)
		return err
	}

	stored := *code
	stored.Scopes = cloneScopes(code.Scopes)

	r.s.mu.Lock()
	r.s.deviceCodes[code.DeviceCode] = &stored
	r.s.userCodeIndex[util.NormalizeUserCode(code.UserCode)] = code.DeviceCode
	r.s.mu.Unlock()

	end(nil)
	return nil
}

// GetByDeviceCode returns a copy of the session
func (r *DeviceCodeRepository) GetByDeviceCode(ctx context.Context, deviceCode string) (*storage.DeviceCode, error) {
	_, end := r.s.observe(ctx, "get_device_code")
	defer end(nil)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.getLocked(deviceCode)
}

// GetByUserCode finds a session by user code, ignoring case and dashes
func (r *DeviceCodeRepository) GetByUserCode(ctx context.Context, userCode string) (*storage.DeviceCode, error) {
	_, end := r.s.observe(ctx, "get_device_code_by_user_code")
	defer end(nil)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	deviceCode, ok := r.s.userCodeIndex[util.NormalizeUserCode(userCode)]
	if !ok {
		return nil, fmt.Errorf("user code: %w", storage.ErrNotFound)
	}
	return r.getLocked(deviceCode)
}

func (r *DeviceCodeRepository) getLocked(deviceCode string) (*storage.DeviceCode, error) {
	stored, ok := r.s.deviceCodes[deviceCode]
	if !ok {
		return nil, fmt.Errorf("device code: %w", storage.ErrNotFound)
	}
	c := *stored
	c.Scopes = cloneScopes(stored.Scopes)
	return &c, nil
}

// Revoke marks the session redeemed, atomically
func (r *DeviceCodeRepository) Revoke(ctx context.Context, deviceCode string) error {
	_, end := r.s.observe(ctx, "revoke_device_code")

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var err error
	stored, ok := r.s.deviceCodes[deviceCode]
	switch {
	case !ok:
		err = fmt.Errorf("device code: %w", storage.ErrNotFound)
	case stored.Status == storage.DeviceCodeRedeemed:
		err = storage.ErrAlreadyRevoked
	default:
		stored.Status = storage.DeviceCodeRedeemed
	}
	end(err)
	return err
}
