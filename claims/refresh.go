package claims

import (
	"strings"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// RefreshToken is the payload of a self-encoded refresh token
type RefreshToken struct {
	ClientID       string
	AccessTokenID  string
	RefreshTokenID string
	Scope          string
	UserID         string

	// ExpireTime is in unix seconds and never later than the persisted expiry
	ExpireTime int64
}

// NewRefreshToken captures token's refresh credential
func NewRefreshToken(token *storage.Token, delimiter string) *RefreshToken {
	rt := &RefreshToken{
		AccessTokenID:  token.AccessToken,
		RefreshTokenID: token.RefreshToken,
		Scope:          strings.Join(storage.ScopeNames(token.Scopes), delimiter),
		UserID:         token.UserID(),
		ExpireTime:     token.RefreshTokenExpiresAt.Unix(),
	}
	if token.Client != nil {
		rt.ClientID = token.Client.ID
	}
	return rt
}

// Expired reports whether the refresh token is past its expire_time
func (r *RefreshToken) Expired(now time.Time) bool {
	return now.Unix() > r.ExpireTime
}

// Map returns the claim map that gets signed
func (r *RefreshToken) Map() map[string]any {
	m := map[string]any{
		"client_id":        r.ClientID,
		"access_token_id":  r.AccessTokenID,
		"refresh_token_id": r.RefreshTokenID,
		"scope":            r.Scope,
		"expire_time":      r.ExpireTime,
	}
	if r.UserID != "" {
		m["user_id"] = r.UserID
	}
	return m
}

// ParseRefreshToken reads a verified claim map. Missing claims are left empty
// for the grant to reject.
func ParseRefreshToken(m map[string]any) *RefreshToken {
	exp, _ := Int64(m, "expire_time")
	return &RefreshToken{
		ClientID:       String(m, "client_id"),
		AccessTokenID:  String(m, "access_token_id"),
		RefreshTokenID: String(m, "refresh_token_id"),
		Scope:          String(m, "scope"),
		UserID:         String(m, "user_id"),
		ExpireTime:     exp,
	}
}
