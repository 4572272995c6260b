package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRevoked is returned by atomic revocation when a record was already consumed
	ErrAlreadyRevoked = errors.New("already revoked")
)

// ClientRepository looks up and authenticates OAuth clients.
// All methods accept context.Context for tracing and cancellation.
type ClientRepository interface {
	// GetByIdentifier returns the client with the given id, or ErrNotFound
	GetByIdentifier(ctx context.Context, clientID string) (*Client, error)

	// IsClientValid checks the presented secret and whether the client may use grantType.
	// secret is empty when the caller presented none.
	IsClientValid(ctx context.Context, grantType string, client *Client, secret string) (bool, error)
}

// ScopeRepository resolves scope names and applies business policy to granted scopes
type ScopeRepository interface {
	// GetAllByIdentifiers returns the known scopes among names. Unknown names are omitted.
	GetAllByIdentifiers(ctx context.Context, names []string) ([]Scope, error)

	// Finalize lets the application add or strip scopes before a token is issued.
	// userID is empty for grants without a resource owner.
	Finalize(ctx context.Context, scopes []Scope, grantType string, client *Client, userID string) ([]Scope, error)
}

// TokenRepository mints, persists and revokes access/refresh tokens
type TokenRepository interface {
	// IssueToken returns a new, unpersisted token with a fresh access token identifier
	IssueToken(ctx context.Context, client *Client, scopes []Scope, user *User) (*Token, error)

	// IssueRefreshToken attaches a refresh token to token (and persists it), or returns
	// token unchanged to decline issuing one
	IssueRefreshToken(ctx context.Context, token *Token, client *Client) (*Token, error)

	// Persist stores the token
	Persist(ctx context.Context, token *Token) error

	// Revoke invalidates the token's access and refresh parts by forcing their
	// expiries into the past. It returns ErrAlreadyRevoked when the refresh
	// token was revoked before.
	Revoke(ctx context.Context, token *Token) error

	// IsRefreshTokenRevoked reports whether the refresh token can no longer be used
	IsRefreshTokenRevoked(ctx context.Context, token *Token) (bool, error)

	// GetByRefreshToken returns the token owning refreshToken, or ErrNotFound
	GetByRefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}

// DescendantRevoker is optionally implemented by token repositories that can
// revoke every token issued from an authorization code (code reuse cascade).
type DescendantRevoker interface {
	RevokeDescendantsOf(ctx context.Context, authCodeID string) error
}

// AccessTokenLookup is optionally implemented by token repositories that can
// find a token by its access token identifier (used by revocation and introspection).
type AccessTokenLookup interface {
	GetByAccessToken(ctx context.Context, accessToken string) (*Token, error)
}

// AuthCodeRepository issues and tracks authorization codes
type AuthCodeRepository interface {
	// IssueAuthCode returns a new, unpersisted authorization code
	IssueAuthCode(ctx context.Context, client *Client, user *User, scopes []Scope) (*AuthCode, error)

	// Persist stores the code
	Persist(ctx context.Context, code *AuthCode) error

	// IsRevoked reports whether the code has been consumed or revoked.
	// Unknown codes count as revoked.
	IsRevoked(ctx context.Context, code string) (bool, error)

	// GetByIdentifier returns the code, or ErrNotFound
	GetByIdentifier(ctx context.Context, code string) (*AuthCode, error)

	// Revoke marks the code as consumed.
	// It returns ErrAlreadyRevoked when the code was consumed before, so two
	// concurrent redemptions cannot both succeed.
	Revoke(ctx context.Context, code string) error
}

// UserRepository resolves resource owners
type UserRepository interface {
	// GetUserByCredentials returns the user identified by identifier. password is
	// empty when the caller only needs a lookup (e.g. after code exchange).
	// A nil user and nil error means the credentials did not match.
	GetUserByCredentials(ctx context.Context, identifier, password, grantType string, client *Client) (*User, error)
}

// ExtraAccessTokenFieldsProvider is optionally implemented by user repositories to
// add application-defined claims to access tokens
type ExtraAccessTokenFieldsProvider interface {
	ExtraAccessTokenFields(ctx context.Context, user *User) (map[string]any, error)
}

// DeviceCodeRepository tracks device authorization sessions (RFC 8628)
type DeviceCodeRepository interface {
	// IssueDeviceCode returns a new, unpersisted device code with device and user codes set
	IssueDeviceCode(ctx context.Context, client *Client, scopes []Scope) (*DeviceCode, error)

	// Persist stores the device code (also used to record polling and approval)
	Persist(ctx context.Context, code *DeviceCode) error

	// GetByDeviceCode returns the session, or ErrNotFound
	GetByDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error)

	// GetByUserCode returns the session a user code was issued for, or ErrNotFound
	GetByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)

	// Revoke marks the device code as redeemed.
	// It returns ErrAlreadyRevoked when the code was redeemed before.
	Revoke(ctx context.Context, deviceCode string) error
}
