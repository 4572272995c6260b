package storage

import (
	"slices"
	"time"
)

// Client represents a registered OAuth client.
// An empty Secret marks a public client.
type Client struct {
	ID            string
	Name          string
	Secret        string // opaque to the core; the memory store keeps a bcrypt hash
	RedirectURIs  []string
	AllowedGrants []string
	Scopes        []Scope
}

// IsConfidential reports whether the client holds a secret
func (c *Client) IsConfidential() bool {
	return c.Secret != ""
}

// AllowsGrant reports whether grantType is in the client's allowed set
func (c *Client) AllowsGrant(grantType string) bool {
	return slices.Contains(c.AllowedGrants, grantType)
}

// HasScope reports whether the client may request the named scope
func (c *Client) HasScope(name string) bool {
	for _, s := range c.Scopes {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Scope is a named permission
type Scope struct {
	Name        string
	Description string
}

// ScopeNames returns the names of scopes, in order
func ScopeNames(scopes []Scope) []string {
	names := make([]string, 0, len(scopes))
	for _, s := range scopes {
		names = append(names, s.Name)
	}
	return names
}

// User is a resource owner. Claims carries application data (email, ...).
type User struct {
	ID     string
	Claims map[string]any
}

// Token is an access token with an optional refresh token
type Token struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Client                *Client
	User                  *User
	Scopes                []Scope

	// OriginatingAuthCodeID links the token to the code it was exchanged for
	OriginatingAuthCodeID string
}

// UserID returns the owning user's id, or "" for user-less grants
func (t *Token) UserID() string {
	if t.User == nil {
		return ""
	}
	return t.User.ID
}

// AuthCode is an issued authorization code
type AuthCode struct {
	Code                string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Audience            []string
	ExpiresAt           time.Time
	Client              *Client
	User                *User
	Scopes              []Scope
}

// DeviceCodeStatus is the approval state of a device authorization session
type DeviceCodeStatus string

// Device code states
const (
	DeviceCodePending  DeviceCodeStatus = "pending"
	DeviceCodeApproved DeviceCodeStatus = "approved"
	DeviceCodeDenied   DeviceCodeStatus = "denied"
	DeviceCodeRedeemed DeviceCodeStatus = "redeemed"
)

// DeviceCode is a device authorization session (RFC 8628)
type DeviceCode struct {
	DeviceCode   string
	UserCode     string
	Client       *Client
	Scopes       []Scope
	ExpiresAt    time.Time
	Interval     time.Duration
	LastPolledAt time.Time
	Status       DeviceCodeStatus
	User         *User
}
