package claims

import (
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// AuthCode is the payload of a self-encoded authorization code
type AuthCode struct {
	ClientID            string
	RedirectURI         string
	AuthCodeID          string
	Scopes              []string
	UserID              string
	ExpireTime          int64
	CodeChallenge       string
	CodeChallengeMethod string
	Audience            []string
}

// NewAuthCode captures an issued authorization code
func NewAuthCode(code *storage.AuthCode) *AuthCode {
	ac := &AuthCode{
		RedirectURI:         code.RedirectURI,
		AuthCodeID:          code.Code,
		Scopes:              storage.ScopeNames(code.Scopes),
		ExpireTime:          code.ExpiresAt.Unix(),
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		Audience:            code.Audience,
	}
	if code.Client != nil {
		ac.ClientID = code.Client.ID
	}
	if code.User != nil {
		ac.UserID = code.User.ID
	}
	return ac
}

// Expired reports whether the code is past its expire_time
func (a *AuthCode) Expired(now time.Time) bool {
	return now.Unix() > a.ExpireTime
}

// Map returns the claim map that gets signed
func (a *AuthCode) Map() map[string]any {
	m := map[string]any{
		"client_id":    a.ClientID,
		"redirect_uri": a.RedirectURI,
		"auth_code_id": a.AuthCodeID,
		"scopes":       a.Scopes,
		"expire_time":  a.ExpireTime,
	}
	if a.UserID != "" {
		m["user_id"] = a.UserID
	}
	if a.CodeChallenge != "" {
		m["code_challenge"] = a.CodeChallenge
		m["code_challenge_method"] = a.CodeChallengeMethod
	}
	if len(a.Audience) > 0 {
		m["audience"] = a.Audience
	}
	return m
}

// ParseAuthCode reads a verified claim map
func ParseAuthCode(m map[string]any) *AuthCode {
	exp, _ := Int64(m, "expire_time")
	return &AuthCode{
		ClientID:            String(m, "client_id"),
		RedirectURI:         String(m, "redirect_uri"),
		AuthCodeID:          String(m, "auth_code_id"),
		Scopes:              Strings(m, "scopes"),
		UserID:              String(m, "user_id"),
		ExpireTime:          exp,
		CodeChallenge:       String(m, "code_challenge"),
		CodeChallengeMethod: String(m, "code_challenge_method"),
		Audience:            Strings(m, "audience"),
	}
}
