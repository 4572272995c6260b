package grant

import (
	"time"

	"github.com/giantswarm/oauth-core/claims"
)

// Default lifetimes
const (
	DefaultAccessTokenTTL       = time.Hour
	DefaultAuthorizationCodeTTL = 15 * time.Minute
	DefaultDeviceCodeTTL        = 10 * time.Minute
	DefaultDevicePollInterval   = 5 * time.Second
)

// Options is the grant configuration. Grants keep their own copy, so changing
// an Options value after a grant was constructed has no effect on it.
type Options struct {
	// RequiresPKCE rejects authorization requests without code_challenge
	RequiresPKCE bool

	// RequiresS256 rejects code_challenge_method=plain
	RequiresS256 bool

	// NotBeforeLeeway is subtracted from now for the nbf claim
	NotBeforeLeeway time.Duration

	// TokenCID selects whether cid carries the client id or name
	TokenCID claims.CIDMode

	// Issuer is written to iss when set
	Issuer string

	// ScopeDelimiter separates scope names in requests and responses
	ScopeDelimiter string

	// AuthenticateIntrospect requires client authentication at the introspection endpoint
	AuthenticateIntrospect bool

	// AuthenticateRevoke requires client authentication at the revocation endpoint
	AuthenticateRevoke bool

	// UseOpaqueAuthorizationCodes hands out repository identifiers instead of signed codes
	UseOpaqueAuthorizationCodes bool

	// UseOpaqueRefreshTokens hands out repository identifiers instead of signed refresh tokens
	UseOpaqueRefreshTokens bool

	// AuthorizationCodeTTL is the lifetime of authorization codes
	AuthorizationCodeTTL time.Duration

	// DeviceCodeTTL is the lifetime of device codes
	DeviceCodeTTL time.Duration

	// DevicePollInterval is the minimum polling interval handed to devices
	DevicePollInterval time.Duration

	// DeviceVerificationURI is where users enter their user code
	DeviceVerificationURI string

	// Now overrides the clock (tests)
	Now func() time.Time
}

// DefaultOptions returns the secure defaults: PKCE required, authenticated
// revocation and introspection, self-encoded codes and refresh tokens.
func DefaultOptions() Options {
	return Options{
		RequiresPKCE:           true,
		TokenCID:               claims.CIDClientID,
		ScopeDelimiter:         " ",
		AuthenticateIntrospect: true,
		AuthenticateRevoke:     true,
		AuthorizationCodeTTL:   DefaultAuthorizationCodeTTL,
		DeviceCodeTTL:          DefaultDeviceCodeTTL,
		DevicePollInterval:     DefaultDevicePollInterval,
	}
}

// withDefaults fills zero values that have no meaningful zero
func (o Options) withDefaults() Options {
	if o.TokenCID == "" {
		o.TokenCID = claims.CIDClientID
	}
	if o.ScopeDelimiter == "" {
		o.ScopeDelimiter = " "
	}
	if o.AuthorizationCodeTTL <= 0 {
		o.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if o.DeviceCodeTTL <= 0 {
		o.DeviceCodeTTL = DefaultDeviceCodeTTL
	}
	if o.DevicePollInterval <= 0 {
		o.DevicePollInterval = DefaultDevicePollInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
