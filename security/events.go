package security

// Event type constants for security audit logging
const (
	// Token lifecycle events

	// EventTokenIssued is logged when an access token is issued by any grant
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is rotated
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token or code is revoked through the revocation endpoint
	EventTokenRevoked = "token_revoked"

	// Authorization flow events

	// EventAuthorizationCodeIssued is logged when an authorization request is completed with a code
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeReuseDetected is logged when a revoked code is presented again
	EventAuthorizationCodeReuseDetected = "authorization_code_reuse_detected"

	// EventAuthorizationDenied is logged when the resource owner did not approve the request
	EventAuthorizationDenied = "authorization_denied"

	// EventDeviceAuthorizationStarted is logged when a device code is issued
	EventDeviceAuthorizationStarted = "device_authorization_started"

	// Security violation events

	// EventClientAuthFailure is logged when client authentication fails
	EventClientAuthFailure = "client_auth_failure"

	// EventUserAuthFailure is logged when resource owner credentials do not match
	EventUserAuthFailure = "user_auth_failure"

	// EventPKCEValidationFailed is logged when the code_verifier does not match the challenge
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventScopeEscalationAttempt is logged when a refresh request asks for scopes not originally granted
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// EventInvalidGrantArtifact is logged when a code or refresh token fails decryption or signature verification
	EventInvalidGrantArtifact = "invalid_grant_artifact"
)
