package signer

import (
	"context"
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/giantswarm/oauth-core/claims"
	"github.com/giantswarm/oauth-core/storage"
)

// JOSE signs claim maps as compact JWS using go-jose
type JOSE struct {
	alg       gojose.SignatureAlgorithm
	signer    gojose.Signer
	verifyKey any
	extra     claims.ExtraFieldsFunc
	now       func() time.Time
}

// NewJOSE returns a signer for alg. signKey may be nil for a verify-only
// signer. kid, if set, is written to the JWS header.
func NewJOSE(alg gojose.SignatureAlgorithm, signKey, verifyKey any, kid string) (*JOSE, error) {
	if verifyKey == nil {
		return nil, errors.New("jose signer needs a verification key")
	}
	s := &JOSE{
		alg:       alg,
		verifyKey: verifyKey,
		now:       time.Now,
	}
	if signKey != nil {
		opts := (&gojose.SignerOptions{}).WithType("JWT")
		if kid != "" {
			opts = opts.WithHeader("kid", kid)
		}
		signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: alg, Key: signKey}, opts)
		if err != nil {
			return nil, fmt.Errorf("new signer: %w", err)
		}
		s.signer = signer
	}
	return s, nil
}

// WithExtraTokenFields sets claims added to every access token
func (s *JOSE) WithExtraTokenFields(fn claims.ExtraFieldsFunc) *JOSE {
	s.extra = fn
	return s
}

// WithClock sets the time exp and nbf are checked against
func (s *JOSE) WithClock(now func() time.Time) *JOSE {
	if now != nil {
		s.now = now
	}
	return s
}

// ExtraTokenFields implements claims.ExtraFieldsProvider
func (s *JOSE) ExtraTokenFields(ctx context.Context, token *storage.Token, client *storage.Client) (map[string]any, error) {
	if s.extra == nil {
		return nil, nil
	}
	return s.extra(ctx, token, client)
}

// Sign implements claims.Signer
func (s *JOSE) Sign(_ context.Context, m map[string]any) (string, error) {
	if s.signer == nil {
		return "", errors.New("signer has no private key")
	}
	token, err := gojwt.Signed(s.signer).Claims(m).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Verify implements claims.Signer. Standard time claims, when present, are
// validated like golang-jwt does.
func (s *JOSE) Verify(_ context.Context, raw string) (map[string]any, error) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{s.alg})
	if err != nil {
		return nil, fmt.Errorf("%w: parse token: %v", claims.ErrCannotDecrypt, err)
	}

	var std gojwt.Claims
	out := make(map[string]any)
	if err := parsed.Claims(s.verifyKey, &std, &out); err != nil {
		if errors.Is(err, gojose.ErrCryptoFailure) {
			return nil, fmt.Errorf("%w: %v", claims.ErrCannotVerify, err)
		}
		return nil, fmt.Errorf("%w: verify token: %v", claims.ErrCannotDecrypt, err)
	}

	if err := std.ValidateWithLeeway(gojwt.Expected{Time: s.now()}, 0); err != nil {
		if errors.Is(err, gojwt.ErrExpired) || errors.Is(err, gojwt.ErrNotValidYet) {
			return nil, fmt.Errorf("%w: %v", claims.ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: validate claims: %v", claims.ErrCannotDecrypt, err)
	}

	return out, nil
}
