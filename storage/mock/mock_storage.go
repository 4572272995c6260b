// Package mock provides function-field implementations of the storage
// repositories for testing. Each mock forwards to a delegate repository
// (usually a memory store) unless the corresponding Func field is replaced,
// which makes it easy to inject storage failures and lost races.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/giantswarm/oauth-core/storage"
)

// calls counts invocations per method name
type calls struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *calls) inc(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[method]++
}

// CallCount returns how often method was called
func (c *calls) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[method]
}

// ResetCallCounts resets all call counters
func (c *calls) ResetCallCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = nil
}

// TokenRepository is a mock storage.TokenRepository. It also implements
// storage.DescendantRevoker and storage.AccessTokenLookup, forwarding to the
// delegate when it supports them.
type TokenRepository struct {
	calls

	IssueTokenFunc            func(ctx context.Context, client *storage.Client, scopes []storage.Scope, user *storage.User) (*storage.Token, error)
	IssueRefreshTokenFunc     func(ctx context.Context, token *storage.Token, client *storage.Client) (*storage.Token, error)
	PersistFunc               func(ctx context.Context, token *storage.Token) error
	RevokeFunc                func(ctx context.Context, token *storage.Token) error
	IsRefreshTokenRevokedFunc func(ctx context.Context, token *storage.Token) (bool, error)
	GetByRefreshTokenFunc     func(ctx context.Context, refreshToken string) (*storage.Token, error)
	GetByAccessTokenFunc      func(ctx context.Context, accessToken string) (*storage.Token, error)
	RevokeDescendantsOfFunc   func(ctx context.Context, authCodeID string) error
}

var (
	_ storage.TokenRepository   = (*TokenRepository)(nil)
	_ storage.DescendantRevoker = (*TokenRepository)(nil)
	_ storage.AccessTokenLookup = (*TokenRepository)(nil)
)

// NewTokenRepository creates a mock forwarding every call to delegate
func NewTokenRepository(delegate storage.TokenRepository) *TokenRepository {
	m := &TokenRepository{
		IssueTokenFunc:            delegate.IssueToken,
		IssueRefreshTokenFunc:     delegate.IssueRefreshToken,
		PersistFunc:               delegate.Persist,
		RevokeFunc:                delegate.Revoke,
		IsRefreshTokenRevokedFunc: delegate.IsRefreshTokenRevoked,
		GetByRefreshTokenFunc:     delegate.GetByRefreshToken,
		GetByAccessTokenFunc: func(context.Context, string) (*storage.Token, error) {
			return nil, fmt.Errorf("access token: %w", storage.ErrNotFound)
		},
		RevokeDescendantsOfFunc: func(context.Context, string) error { return nil },
	}
	if lookup, ok := delegate.(storage.AccessTokenLookup); ok {
		m.GetByAccessTokenFunc = lookup.GetByAccessToken
	}
	if revoker, ok := delegate.(storage.DescendantRevoker); ok {
		m.RevokeDescendantsOfFunc = revoker.RevokeDescendantsOf
	}
	return m
}

// IssueToken calls IssueTokenFunc
func (m *TokenRepository) IssueToken(ctx context.Context, client *storage.Client, scopes []storage.Scope, user *storage.User) (*storage.Token, error) {
	m.inc("IssueToken")
	return m.IssueTokenFunc(ctx, client, scopes, user)
}

// IssueRefreshToken calls IssueRefreshTokenFunc
func (m *TokenRepository) IssueRefreshToken(ctx context.Context, token *storage.Token, client *storage.Client) (*storage.Token, error) {
	m.inc("IssueRefreshToken")
	return m.IssueRefreshTokenFunc(ctx, token, client)
}

// Persist calls PersistFunc
func (m *TokenRepository) Persist(ctx context.Context, token *storage.Token) error {
	m.inc("Persist")
	return m.PersistFunc(ctx, token)
}

// Revoke calls RevokeFunc
func (m *TokenRepository) Revoke(ctx context.Context, token *storage.Token) error {
	m.inc("Revoke")
	return m.RevokeFunc(ctx, token)
}

// IsRefreshTokenRevoked calls IsRefreshTokenRevokedFunc
func (m *TokenRepository) IsRefreshTokenRevoked(ctx context.Context, token *storage.Token) (bool, error) {
	m.inc("IsRefreshTokenRevoked")
	return m.IsRefreshTokenRevokedFunc(ctx, token)
}

// GetByRefreshToken calls GetByRefreshTokenFunc
func (m *TokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*storage.Token, error) {
	m.inc("GetByRefreshToken")
	return m.GetByRefreshTokenFunc(ctx, refreshToken)
}

// GetByAccessToken calls GetByAccessTokenFunc
func (m *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (*storage.Token, error) {
	m.inc("GetByAccessToken")
	return m.GetByAccessTokenFunc(ctx, accessToken)
}

// RevokeDescendantsOf calls RevokeDescendantsOfFunc
func (m *TokenRepository) RevokeDescendantsOf(ctx context.Context, authCodeID string) error {
	m.inc("RevokeDescendantsOf")
	return m.RevokeDescendantsOfFunc(ctx, authCodeID)
}

// AuthCodeRepository is a mock storage.AuthCodeRepository
type AuthCodeRepository struct {
	calls

	IssueAuthCodeFunc   func(ctx context.Context, client *storage.Client, user *storage.User, scopes []storage.Scope) (*storage.AuthCode, error)
	PersistFunc         func(ctx context.Context, code *storage.AuthCode) error
	IsRevokedFunc       func(ctx context.Context, code string) (bool, error)
	GetByIdentifierFunc func(ctx context.Context, code string) (*storage.AuthCode, error)
	RevokeFunc          func(ctx context.Context, code string) error
}

var _ storage.AuthCodeRepository = (*AuthCodeRepository)(nil)

// NewAuthCodeRepository creates a mock forwarding every call to delegate
func NewAuthCodeRepository(delegate storage.AuthCodeRepository) *AuthCodeRepository {
	return &AuthCodeRepository{
		IssueAuthCodeFunc:   delegate.IssueAuthCode,
		PersistFunc:         delegate.Persist,
		IsRevokedFunc:       delegate.IsRevoked,
		GetByIdentifierFunc: delegate.GetByIdentifier,
		RevokeFunc:          delegate.Revoke,
	}
}

// IssueAuthCode calls IssueAuthCodeFunc
func (m *AuthCodeRepository) IssueAuthCode(ctx context.Context, client *storage.Client, user *storage.User, scopes []storage.Scope) (*storage.AuthCode, error) {
	m.inc("IssueAuthCode")
	return m.IssueAuthCodeFunc(ctx, client, user, scopes)
}

// Persist calls PersistFunc
func (m *AuthCodeRepository) Persist(ctx context.Context, code *storage.AuthCode) error {
	m.inc("Persist")
	return m.PersistFunc(ctx, code)
}

// IsRevoked calls IsRevokedFunc
func (m *AuthCodeRepository) IsRevoked(ctx context.Context, code string) (bool, error) {
	m.inc("IsRevoked")
	return m.IsRevokedFunc(ctx, code)
}

// GetByIdentifier calls GetByIdentifierFunc
func (m *AuthCodeRepository) GetByIdentifier(ctx context.Context, code string) (*storage.AuthCode, error) {
	m.inc("GetByIdentifier")
	return m.GetByIdentifierFunc(ctx, code)
}

// Revoke calls RevokeFunc
func (m *AuthCodeRepository) Revoke(ctx context.Context, code string) error {
	m.inc("Revoke")
	return m.RevokeFunc(ctx, code)
}

// ClientRepository is a mock storage.ClientRepository
type ClientRepository struct {
	calls

	GetByIdentifierFunc func(ctx context.Context, clientID string) (*storage.Client, error)
	IsClientValidFunc   func(ctx context.Context, grantType string, client *storage.Client, secret string) (bool, error)
}

var _ storage.ClientRepository = (*ClientRepository)(nil)

// NewClientRepository creates a mock forwarding every call to delegate
func NewClientRepository(delegate storage.ClientRepository) *ClientRepository {
	return &ClientRepository{
		GetByIdentifierFunc: delegate.GetByIdentifier,
		IsClientValidFunc:   delegate.IsClientValid,
	}
}

// GetByIdentifier calls GetByIdentifierFunc
func (m *ClientRepository) GetByIdentifier(ctx context.Context, clientID string) (*storage.Client, error) {
	m.inc("GetByIdentifier")
	return m.GetByIdentifierFunc(ctx, clientID)
}

// IsClientValid calls IsClientValidFunc
func (m *ClientRepository) IsClientValid(ctx context.Context, grantType string, client *storage.Client, secret string) (bool, error) {
	m.inc("IsClientValid")
	return m.IsClientValidFunc(ctx, grantType, client, secret)
}
