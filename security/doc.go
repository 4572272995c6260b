// Package security provides the security plumbing shared by the grants:
// audit logging of grant outcomes, an AES-GCM envelope for self-encoded
// authorization codes and refresh tokens, and rate limiting of security
// event logging.
//
// # Audit Logging
//
// The Auditor writes one structured slog record per security event. User
// identifiers are hashed before they reach the log. Events that an attacker
// can trigger at will (code replay, client authentication failures) pass
// through a RateLimiter keyed by event type and client so a replay storm
// cannot flood the logs.
//
//	auditor := security.NewAuditor(logger, true)
//	auditor.LogTokenIssued("user-1", "client-1", "authorization_code", "read write")
//
// # Envelope Encryption
//
// The Encryptor seals a signed token with AES-256-GCM and encodes the result
// as unpadded base64url. A nil or disabled Encryptor passes values through.
//
//	key, _ := security.GenerateKey()
//	enc, _ := security.NewEncryptor(key)
//	sealed, _ := enc.Seal(signedCode)
//	plain, err := enc.Open(sealed) // errors.Is(err, security.ErrDecrypt) on tampering
//
// # Rate Limiting
//
// The RateLimiter is a per-identifier token bucket with LRU eviction. It
// starts no goroutines; idle identifiers are dropped only when the LRU is
// full.
package security
