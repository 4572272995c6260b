package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-core/claims"
	"github.com/giantswarm/oauth-core/grant"
)

// Config holds authorization server configuration. It is converted once into
// grant.Options when the server is created; later changes have no effect.
type Config struct {
	// Issuer is written to the iss claim of access tokens when set
	Issuer string

	// AccessTokenTTL is the default access token lifetime of enabled grants
	// Default: 1 hour
	AccessTokenTTL time.Duration

	// AuthorizationCodeTTL is how long authorization codes are valid
	// Default: 15 minutes
	AuthorizationCodeTTL time.Duration

	// RequiresPKCE makes code_challenge mandatory for the authorization code grant
	// WARNING: Disabling this allows authorization code interception
	// Default: true
	RequiresPKCE bool

	// RequiresS256 rejects code_challenge_method=plain
	// Default: false
	RequiresS256 bool

	// NotBeforeLeeway is subtracted from the current time for the nbf claim
	NotBeforeLeeway time.Duration

	// TokenCID selects whether the cid claim carries the client id or name
	// Default: claims.CIDClientID
	TokenCID claims.CIDMode

	// ScopeDelimiter separates scope names in requests and responses
	// Default: " "
	ScopeDelimiter string

	// AuthenticateRevoke requires client authentication at the revocation endpoint
	// Default: true
	AuthenticateRevoke bool

	// AuthenticateIntrospect requires client authentication at the introspection endpoint
	// Default: true
	AuthenticateIntrospect bool

	// UseOpaqueAuthorizationCodes hands out repository identifiers instead of
	// self-encoded codes
	UseOpaqueAuthorizationCodes bool

	// UseOpaqueRefreshTokens hands out repository identifiers instead of
	// self-encoded refresh tokens
	UseOpaqueRefreshTokens bool

	// DeviceCodeTTL is how long device codes are valid
	// Default: 10 minutes
	DeviceCodeTTL time.Duration

	// DevicePollInterval is the minimum polling interval handed to devices
	// Default: 5 seconds
	DevicePollInterval time.Duration

	// DeviceVerificationURI is where users enter their user code.
	// Required to enable the device code grant.
	DeviceVerificationURI string

	// Now overrides the clock, for tests
	Now func() time.Time
}

// applySecureDefaults applies secure-by-default configuration values
// This follows the principle: secure by default, opt-in for less secure options
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applySecurityDefaults(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = grant.DefaultAccessTokenTTL
	}
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = grant.DefaultAuthorizationCodeTTL
	}
	if config.DeviceCodeTTL <= 0 {
		config.DeviceCodeTTL = grant.DefaultDeviceCodeTTL
	}
	if config.DevicePollInterval <= 0 {
		config.DevicePollInterval = grant.DefaultDevicePollInterval
	}
	if config.ScopeDelimiter == "" {
		config.ScopeDelimiter = " "
	}
	if config.TokenCID == "" {
		config.TokenCID = claims.CIDClientID
	}
}

// applySecurityDefaults sets secure defaults for security-related configuration
// Uses a heuristic to detect if config is new (all security bools false) vs explicitly configured
func applySecurityDefaults(config *Config, logger *slog.Logger) {
	isDefaultConfig := !config.RequiresPKCE &&
		!config.AuthenticateRevoke &&
		!config.AuthenticateIntrospect

	if isDefaultConfig {
		config.RequiresPKCE = true
		config.AuthenticateRevoke = true
		config.AuthenticateIntrospect = true
		return
	}

	logSecurityWarnings(config, logger)
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if !config.RequiresPKCE {
		logger.Warn("SECURITY WARNING: PKCE is DISABLED",
			"risk", "Authorization code interception attacks",
			"recommendation", "Set RequiresPKCE=true",
			"learn_more", "https://datatracker.ietf.org/doc/html/rfc7636#section-1")
	}
	if config.RequiresPKCE && !config.RequiresS256 {
		logger.Info("SECURITY NOTICE: Plain PKCE method is ALLOWED",
			"risk", "Weak code challenge protection",
			"recommendation", "Set RequiresS256=true",
			"learn_more", "https://datatracker.ietf.org/doc/html/rfc7636#section-4.2")
	}
	if !config.AuthenticateRevoke {
		logger.Warn("SECURITY WARNING: Token revocation does not authenticate clients",
			"risk", "Anyone holding a token can revoke it",
			"recommendation", "Set AuthenticateRevoke=true")
	}
	if !config.AuthenticateIntrospect {
		logger.Warn("SECURITY WARNING: Token introspection does not authenticate clients",
			"risk", "Token scanning and information disclosure",
			"recommendation", "Set AuthenticateIntrospect=true")
	}
}

// validateConfig rejects configurations no grant can work with
func validateConfig(config *Config) error {
	if !config.TokenCID.IsValid() {
		return fmt.Errorf("invalid TokenCID %q: must be %q or %q", config.TokenCID, claims.CIDClientID, claims.CIDClientName)
	}
	if config.NotBeforeLeeway < 0 {
		return fmt.Errorf("NotBeforeLeeway must not be negative, got %s", config.NotBeforeLeeway)
	}
	return nil
}

// grantOptions converts config into the immutable options handed to every grant
func (c *Config) grantOptions() grant.Options {
	return grant.Options{
		RequiresPKCE:                c.RequiresPKCE,
		RequiresS256:                c.RequiresS256,
		NotBeforeLeeway:             c.NotBeforeLeeway,
		TokenCID:                    c.TokenCID,
		Issuer:                      c.Issuer,
		ScopeDelimiter:              c.ScopeDelimiter,
		AuthenticateIntrospect:      c.AuthenticateIntrospect,
		AuthenticateRevoke:          c.AuthenticateRevoke,
		UseOpaqueAuthorizationCodes: c.UseOpaqueAuthorizationCodes,
		UseOpaqueRefreshTokens:      c.UseOpaqueRefreshTokens,
		AuthorizationCodeTTL:        c.AuthorizationCodeTTL,
		DeviceCodeTTL:               c.DeviceCodeTTL,
		DevicePollInterval:          c.DevicePollInterval,
		DeviceVerificationURI:       c.DeviceVerificationURI,
		Now:                         c.Now,
	}
}
