package signer

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/oauth-core/claims"
	"github.com/giantswarm/oauth-core/storage"
)

// MinHMACSecretLength is the shortest HS256 secret NewHMAC accepts
const MinHMACSecretLength = 32

// JWT signs claim maps as compact JWS using golang-jwt
type JWT struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	extra     claims.ExtraFieldsFunc
	now       func() time.Time
}

// NewHMAC returns an HS256 signer
func NewHMAC(secret []byte) (*JWT, error) {
	if len(secret) < MinHMACSecretLength {
		return nil, fmt.Errorf("hmac secret must be at least %d bytes, got %d", MinHMACSecretLength, len(secret))
	}
	return &JWT{
		method:    jwt.SigningMethodHS256,
		signKey:   secret,
		verifyKey: secret,
	}, nil
}

// NewRSA returns an RS256 signer. key may be nil for a verify-only signer
// when pub is set.
func NewRSA(key *rsa.PrivateKey, pub *rsa.PublicKey) (*JWT, error) {
	if key == nil && pub == nil {
		return nil, errors.New("rsa signer needs a private or a public key")
	}
	if pub == nil {
		pub = &key.PublicKey
	}
	s := &JWT{
		method:    jwt.SigningMethodRS256,
		verifyKey: pub,
	}
	if key != nil {
		s.signKey = key
	}
	return s, nil
}

// WithExtraTokenFields sets claims added to every access token
func (s *JWT) WithExtraTokenFields(fn claims.ExtraFieldsFunc) *JWT {
	s.extra = fn
	return s
}

// WithClock sets the time exp and nbf are checked against. It should be the
// clock the grants issue tokens with.
func (s *JWT) WithClock(now func() time.Time) *JWT {
	s.now = now
	return s
}

// ExtraTokenFields implements claims.ExtraFieldsProvider
func (s *JWT) ExtraTokenFields(ctx context.Context, token *storage.Token, client *storage.Client) (map[string]any, error) {
	if s.extra == nil {
		return nil, nil
	}
	return s.extra(ctx, token, client)
}

// Sign implements claims.Signer
func (s *JWT) Sign(_ context.Context, m map[string]any) (string, error) {
	if s.signKey == nil {
		return "", errors.New("signer has no private key")
	}
	token := jwt.NewWithClaims(s.method, jwt.MapClaims(m))
	signed, err := token.SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify implements claims.Signer
func (s *JWT) Verify(_ context.Context, raw string) (map[string]any, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{s.method.Alg()}), jwt.WithJSONNumber()}
	if s.now != nil {
		opts = append(opts, jwt.WithTimeFunc(s.now))
	}
	parsed, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	}, opts...)
	if err != nil {
		return nil, mapJWTError(err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", claims.ErrCannotDecrypt)
	}
	return map[string]any(mc), nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", claims.ErrCannotVerify, err)
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", claims.ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", claims.ErrCannotDecrypt, err)
	}
}
