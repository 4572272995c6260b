package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

const (
	// defaultAuditInterval is the sustained rate of rate-limited events per key
	defaultAuditInterval = time.Second

	// defaultAuditBurst is the number of rate-limited events per key logged before throttling
	defaultAuditBurst = 10
)

// Auditor handles security event logging with PII protection.
// A nil Auditor discards every event.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	limiter *RateLimiter
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		limiter: NewRateLimiter(defaultAuditInterval, defaultAuditBurst),
	}
}

// WithRateLimiter replaces the limiter used for attacker-triggerable events.
// A nil limiter disables throttling.
func (a *Auditor) WithRateLimiter(rl *RateLimiter) *Auditor {
	a.limiter = rl
	return a
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	GrantType string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"grant_type", event.GrantType,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// logLimited logs event unless the (type, client) key is over its budget
func (a *Auditor) logLimited(event Event) {
	if a == nil || !a.enabled {
		return
	}
	if !a.limiter.Allow(event.Type + ":" + event.ClientID) {
		return
	}
	a.LogEvent(event)
}

// LogTokenIssued logs when an access token is issued
func (a *Auditor) LogTokenIssued(userID, clientID, grantType, scope string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		UserID:    userID,
		ClientID:  clientID,
		GrantType: grantType,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed logs when a refresh token is exchanged for a new pair
func (a *Auditor) LogTokenRefreshed(userID, clientID string) {
	a.LogEvent(Event{
		Type:      EventTokenRefreshed,
		UserID:    userID,
		ClientID:  clientID,
		GrantType: "refresh_token",
	})
}

// LogTokenRevoked logs when a token is revoked
func (a *Auditor) LogTokenRevoked(userID, clientID, tokenType string) {
	a.LogEvent(Event{
		Type:     EventTokenRevoked,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"token_type": tokenType,
		},
	})
}

// LogAuthorizationCodeIssued logs a completed authorization request
func (a *Auditor) LogAuthorizationCodeIssued(userID, clientID, scope string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		UserID:    userID,
		ClientID:  clientID,
		GrantType: "authorization_code",
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogAuthorizationDenied logs a request the resource owner did not approve
func (a *Auditor) LogAuthorizationDenied(userID, clientID, grantType string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationDenied,
		UserID:    userID,
		ClientID:  clientID,
		GrantType: grantType,
	})
}

// LogDeviceAuthorizationStarted logs that a device code was handed out
func (a *Auditor) LogDeviceAuthorizationStarted(clientID, scope string) {
	a.LogEvent(Event{
		Type:      EventDeviceAuthorizationStarted,
		ClientID:  clientID,
		GrantType: "urn:ietf:params:oauth:grant-type:device_code",
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogCodeReuse logs replay of a consumed authorization code. Rate limited.
func (a *Auditor) LogCodeReuse(clientID, codeID string) {
	a.logLimited(Event{
		Type:      EventAuthorizationCodeReuseDetected,
		ClientID:  clientID,
		GrantType: "authorization_code",
		Details: map[string]any{
			"code_id_hash": hashForLogging(codeID),
		},
	})
}

// LogClientAuthFailure logs a failed client authentication. Rate limited.
func (a *Auditor) LogClientAuthFailure(clientID, grantType, reason string) {
	a.logLimited(Event{
		Type:      EventClientAuthFailure,
		ClientID:  clientID,
		GrantType: grantType,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogUserAuthFailure logs resource owner credentials that did not match. Rate limited.
func (a *Auditor) LogUserAuthFailure(username, clientID string) {
	a.logLimited(Event{
		Type:      EventUserAuthFailure,
		UserID:    username,
		ClientID:  clientID,
		GrantType: "password",
	})
}

// LogPKCEFailure logs a code_verifier that did not match. Rate limited.
func (a *Auditor) LogPKCEFailure(clientID, method string) {
	a.logLimited(Event{
		Type:      EventPKCEValidationFailed,
		ClientID:  clientID,
		GrantType: "authorization_code",
		Details: map[string]any{
			"method": method,
		},
	})
}

// LogScopeEscalation logs a refresh request that asked for more than was granted
func (a *Auditor) LogScopeEscalation(userID, clientID string, requested []string) {
	a.logLimited(Event{
		Type:      EventScopeEscalationAttempt,
		UserID:    userID,
		ClientID:  clientID,
		GrantType: "refresh_token",
		Details: map[string]any{
			"requested": requested,
		},
	})
}

// LogInvalidArtifact logs a code or refresh token that failed decoding. Rate limited.
func (a *Auditor) LogInvalidArtifact(clientID, grantType, reason string) {
	a.logLimited(Event{
		Type:      EventInvalidGrantArtifact,
		ClientID:  clientID,
		GrantType: grantType,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
