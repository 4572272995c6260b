// Package claims builds and parses the claim sets carried by self-encoded
// access tokens, refresh tokens and authorization codes, and defines the
// Signer contract used to turn them into compact tokens.
package claims

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth-core/storage"
)

var (
	// ErrCannotDecrypt means the value is malformed or its envelope could not be opened
	ErrCannotDecrypt = errors.New("cannot decrypt")

	// ErrCannotVerify means the value decoded but its signature is invalid
	ErrCannotVerify = errors.New("cannot verify signature")

	// ErrExpired means the token's exp or nbf claim rejects it at this time
	ErrExpired = errors.New("token expired or not yet valid")
)

// Signer turns a claim map into a compact token and back.
//
// Verify must wrap ErrCannotVerify for signature failures, ErrCannotDecrypt
// for malformed input and ErrExpired when standard time claims reject the
// token.
type Signer interface {
	Sign(ctx context.Context, claims map[string]any) (string, error)
	Verify(ctx context.Context, token string) (map[string]any, error)
}

// ExtraFieldsProvider is optionally implemented by signers that add
// deployment-wide claims (issuer, audience, tenant, ...) to access tokens.
type ExtraFieldsProvider interface {
	ExtraTokenFields(ctx context.Context, token *storage.Token, client *storage.Client) (map[string]any, error)
}

// ExtraFieldsFunc adapts a function to ExtraFieldsProvider
type ExtraFieldsFunc func(ctx context.Context, token *storage.Token, client *storage.Client) (map[string]any, error)

// ExtraTokenFields calls f
func (f ExtraFieldsFunc) ExtraTokenFields(ctx context.Context, token *storage.Token, client *storage.Client) (map[string]any, error) {
	return f(ctx, token, client)
}

// CIDMode selects which client attribute fills the access token's cid claim
type CIDMode string

const (
	// CIDClientID puts the client id in cid (default)
	CIDClientID CIDMode = "id"

	// CIDClientName puts the client name in cid
	CIDClientName CIDMode = "name"
)

// IsValid reports whether m is a known mode
func (m CIDMode) IsValid() bool {
	return m == CIDClientID || m == CIDClientName
}
