// Package pkce implements Proof Key for Code Exchange verification (RFC 7636).
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

// PKCE constants (RFC 7636 Section 4.1 and 4.2)
const (
	MethodPlain = "plain"
	MethodS256  = "S256"

	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// Verifier checks a code_verifier against a recorded code_challenge
type Verifier interface {
	// Method returns the code_challenge_method this verifier implements
	Method() string

	// Verify reports whether verifier satisfies challenge
	Verify(verifier, challenge string) bool
}

type plainVerifier struct{}

func (plainVerifier) Method() string { return MethodPlain }

func (plainVerifier) Verify(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
}

type s256Verifier struct{}

func (s256Verifier) Method() string { return MethodS256 }

func (s256Verifier) Verify(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(ChallengeS256(verifier)), []byte(challenge)) == 1
}

var (
	// Plain compares verifier and challenge byte for byte
	Plain Verifier = plainVerifier{}

	// S256 compares BASE64URL(SHA256(verifier)) with the challenge
	S256 Verifier = s256Verifier{}
)

// ChallengeS256 derives the S256 code_challenge for a verifier
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ForMethod returns the verifier for a code_challenge_method.
// An empty method means "plain" (RFC 7636 Section 4.3).
func ForMethod(method string) (Verifier, error) {
	switch {
	case method == "" || method == MethodPlain:
		return Plain, nil
	case strings.EqualFold(method, MethodS256):
		return S256, nil
	default:
		return nil, fmt.Errorf("unsupported code_challenge_method: %s", method)
	}
}

// IsSupportedMethod reports whether method is plain or S256
func IsSupportedMethod(method string) bool {
	_, err := ForMethod(method)
	return err == nil && method != ""
}

// ValidateVerifier enforces the RFC 7636 grammar:
// 43-128 characters of [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters", MinVerifierLength)
	}
	if len(verifier) > MaxVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters", MaxVerifierLength)
	}
	for _, ch := range verifier {
		valid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !valid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}
	return nil
}
