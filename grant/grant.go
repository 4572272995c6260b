package grant

import (
	"context"
	"time"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/storage"
)

// Identifier names a grant type as it appears in grant_type
type Identifier string

// Grant type identifiers
const (
	AuthorizationCode Identifier = "authorization_code"
	ClientCredentials Identifier = "client_credentials"
	RefreshToken      Identifier = "refresh_token"
	Password          Identifier = "password"
	Implicit          Identifier = "implicit"
	TokenExchange     Identifier = "urn:ietf:params:oauth:grant-type:token-exchange"
	DeviceCode        Identifier = "urn:ietf:params:oauth:grant-type:device_code"
)

// KnownIdentifiers lists the grant types this package implements, in the
// order the server tries them
var KnownIdentifiers = []Identifier{
	AuthorizationCode,
	ClientCredentials,
	RefreshToken,
	Password,
	Implicit,
	TokenExchange,
	DeviceCode,
}

// IsKnown reports whether id is one of KnownIdentifiers
func IsKnown(id Identifier) bool {
	for _, known := range KnownIdentifiers {
		if id == known {
			return true
		}
	}
	return false
}

// Token type hints accepted by the revocation and introspection endpoints
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
	TokenTypeHintAuthCode     = "auth_code"
)

// Grant is one OAuth grant type. The server asks each enabled grant whether it
// can respond to a request and delegates to the first that can.
type Grant interface {
	Identifier() Identifier

	// CanRespondToAccessTokenRequest reports whether the grant handles this token request
	CanRespondToAccessTokenRequest(req *oauth.Request) bool

	// RespondToAccessTokenRequest issues tokens valid for accessTokenTTL
	RespondToAccessTokenRequest(ctx context.Context, req *oauth.Request, accessTokenTTL time.Duration) (*oauth.Response, error)

	// CanRespondToAuthorizationRequest reports whether the grant handles this authorize request
	CanRespondToAuthorizationRequest(req *oauth.Request) bool

	// ValidateAuthorizationRequest checks an authorize request and returns the
	// in-flight record the application completes with a user and approval
	ValidateAuthorizationRequest(ctx context.Context, req *oauth.Request) (*AuthorizationRequest, error)

	// CompleteAuthorizationRequest turns an approved request into a redirect
	CompleteAuthorizationRequest(ctx context.Context, authReq *AuthorizationRequest, accessTokenTTL time.Duration) (*oauth.Response, error)

	// CanRespondToRevokeRequest reports whether the grant revokes this kind of token
	CanRespondToRevokeRequest(req *oauth.Request) bool

	// RespondToRevokeRequest revokes the presented token. Unknown tokens are not an error.
	RespondToRevokeRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error)

	// CanRespondToIntrospectRequest reports whether the grant introspects this kind of token
	CanRespondToIntrospectRequest(req *oauth.Request) bool

	// RespondToIntrospectRequest describes the presented token. Unknown tokens are inactive.
	RespondToIntrospectRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error)
}

// DeviceAuthorizer is implemented by grants that serve the device
// authorization endpoint (RFC 8628 Section 3.1)
type DeviceAuthorizer interface {
	RespondToDeviceAuthorizationRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error)

	// Approve records the user's decision for a pending user code
	Approve(ctx context.Context, userCode string, user *storage.User, approved bool) error
}

var (
	_ Grant = (*AuthCodeGrant)(nil)
	_ Grant = (*ClientCredentialsGrant)(nil)
	_ Grant = (*RefreshTokenGrant)(nil)
	_ Grant = (*PasswordGrant)(nil)
	_ Grant = (*ImplicitGrant)(nil)
	_ Grant = (*TokenExchangeGrant)(nil)
	_ Grant = (*DeviceCodeGrant)(nil)

	_ DeviceAuthorizer = (*DeviceCodeGrant)(nil)
)
