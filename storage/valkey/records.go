package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// ============================================================
// JSON Serialization Helpers
// ============================================================
//
// Times are stored as Unix milliseconds, zero for unset.

type scopeJSON struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type clientJSON struct {
	ID            string      `json:"id"`
	Name          string      `json:"name,omitempty"`
	SecretHash    string      `json:"secret_hash,omitempty"`
	RedirectURIs  []string    `json:"redirect_uris,omitempty"`
	AllowedGrants []string    `json:"allowed_grants,omitempty"`
	Scopes        []scopeJSON `json:"scopes,omitempty"`
}

type userJSON struct {
	ID     string         `json:"id"`
	Claims map[string]any `json:"claims,omitempty"`
}

type tokenJSON struct {
	AccessToken           string      `json:"access_token"`
	AccessTokenExpiresAt  int64       `json:"access_token_expires_at"`
	RefreshToken          string      `json:"refresh_token,omitempty"` // sealed when an encryptor is set
	RefreshTokenExpiresAt int64       `json:"refresh_token_expires_at,omitempty"`
	Client                *clientJSON `json:"client,omitempty"`
	User                  *userJSON   `json:"user,omitempty"`
	Scopes                []scopeJSON `json:"scopes,omitempty"`
	OriginatingAuthCodeID string      `json:"originating_auth_code_id,omitempty"`
}

type authCodeJSON struct {
	Code                string      `json:"code"`
	RedirectURI         string      `json:"redirect_uri,omitempty"`
	CodeChallenge       string      `json:"code_challenge,omitempty"`
	CodeChallengeMethod string      `json:"code_challenge_method,omitempty"`
	Audience            []string    `json:"audience,omitempty"`
	ExpiresAt           int64       `json:"expires_at"`
	Client              *clientJSON `json:"client,omitempty"`
	User                *userJSON   `json:"user,omitempty"`
	Scopes              []scopeJSON `json:"scopes,omitempty"`
}

type deviceCodeJSON struct {
	DeviceCode   string      `json:"device_code"`
	UserCode     string      `json:"user_code"`
	Client       *clientJSON `json:"client,omitempty"`
	Scopes       []scopeJSON `json:"scopes,omitempty"`
	ExpiresAt    int64       `json:"expires_at"`
	IntervalMs   int64       `json:"interval_ms"`
	LastPolledAt int64       `json:"last_polled_at,omitempty"`
	Status       string      `json:"status"`
	User         *userJSON   `json:"user,omitempty"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func toScopesJSON(scopes []storage.Scope) []scopeJSON {
	if len(scopes) == 0 {
		return nil
	}
	out := make([]scopeJSON, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, scopeJSON(s))
	}
	return out
}

func fromScopesJSON(scopes []scopeJSON) []storage.Scope {
	out := make([]storage.Scope, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, storage.Scope(s))
	}
	return out
}

// toClientJSON serializes client. The secret hash is only kept for client
// records; copies embedded in tokens and codes drop it.
func toClientJSON(client *storage.Client, withSecret bool) *clientJSON {
	if client == nil {
		return nil
	}
	j := &clientJSON{
		ID:            client.ID,
		Name:          client.Name,
		RedirectURIs:  client.RedirectURIs,
		AllowedGrants: client.AllowedGrants,
		Scopes:        toScopesJSON(client.Scopes),
	}
	if withSecret {
		j.SecretHash = client.Secret
	}
	return j
}

func fromClientJSON(j *clientJSON) *storage.Client {
	if j == nil {
		return nil
	}
	return &storage.Client{
		ID:            j.ID,
		Name:          j.Name,
		Secret:        j.SecretHash,
		RedirectURIs:  j.RedirectURIs,
		AllowedGrants: j.AllowedGrants,
		Scopes:        fromScopesJSON(j.Scopes),
	}
}

func toUserJSON(user *storage.User) *userJSON {
	if user == nil {
		return nil
	}
	return &userJSON{ID: user.ID, Claims: user.Claims}
}

func fromUserJSON(j *userJSON) *storage.User {
	if j == nil {
		return nil
	}
	return &storage.User{ID: j.ID, Claims: j.Claims}
}

func toAuthCodeJSON(code *storage.AuthCode) *authCodeJSON {
	return &authCodeJSON{
		Code:                code.Code,
		RedirectURI:         code.RedirectURI,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		Audience:            code.Audience,
		ExpiresAt:           toMillis(code.ExpiresAt),
		Client:              toClientJSON(code.Client, false),
		User:                toUserJSON(code.User),
		Scopes:              toScopesJSON(code.Scopes),
	}
}

func fromAuthCodeJSON(j *authCodeJSON) *storage.AuthCode {
	return &storage.AuthCode{
		Code:                j.Code,
		RedirectURI:         j.RedirectURI,
		CodeChallenge:       j.CodeChallenge,
		CodeChallengeMethod: j.CodeChallengeMethod,
		Audience:            j.Audience,
		ExpiresAt:           fromMillis(j.ExpiresAt),
		Client:              fromClientJSON(j.Client),
		User:                fromUserJSON(j.User),
		Scopes:              fromScopesJSON(j.Scopes),
	}
}

func toDeviceCodeJSON(code *storage.DeviceCode) *deviceCodeJSON {
	return &deviceCodeJSON{
		DeviceCode:   code.DeviceCode,
		UserCode:     code.UserCode,
		Client:       toClientJSON(code.Client, false),
		Scopes:       toScopesJSON(code.Scopes),
		ExpiresAt:    toMillis(code.ExpiresAt),
		IntervalMs:   code.Interval.Milliseconds(),
		LastPolledAt: toMillis(code.LastPolledAt),
		Status:       string(code.Status),
		User:         toUserJSON(code.User),
	}
}

func fromDeviceCodeJSON(j *deviceCodeJSON) *storage.DeviceCode {
	return &storage.DeviceCode{
		DeviceCode:   j.DeviceCode,
		UserCode:     j.UserCode,
		Client:       fromClientJSON(j.Client),
		Scopes:       fromScopesJSON(j.Scopes),
		ExpiresAt:    fromMillis(j.ExpiresAt),
		Interval:     time.Duration(j.IntervalMs) * time.Millisecond,
		LastPolledAt: fromMillis(j.LastPolledAt),
		Status:       storage.DeviceCodeStatus(j.Status),
		User:         fromUserJSON(j.User),
	}
}

// getJSON fetches key and unmarshals it into a J. A missing key is
// storage.ErrNotFound wrapped with what.
func getJSON[J any](ctx context.Context, s *Store, key, what string) (*J, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}

	var j J
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return &j, nil
}
