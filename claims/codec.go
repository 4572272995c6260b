package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// Config controls how claim sets are built and wrapped
type Config struct {
	// Issuer fills iss when non-empty
	Issuer string

	// TokenCID selects the cid claim source. Empty means CIDClientID.
	TokenCID CIDMode

	// NotBeforeLeeway is subtracted from now to compute nbf
	NotBeforeLeeway time.Duration

	// ScopeDelimiter joins scope names. Empty means " ".
	ScopeDelimiter string

	// Encryptor seals refresh tokens and authorization codes after signing.
	// Nil or disabled means signed only.
	Encryptor *security.Encryptor

	// Now overrides the clock (tests)
	Now func() time.Time
}

// Codec signs, seals and parses the self-encoded artifacts of the grants
type Codec struct {
	signer Signer
	cfg    Config
}

// NewCodec creates a codec around signer
func NewCodec(signer Signer, cfg Config) *Codec {
	if cfg.TokenCID == "" {
		cfg.TokenCID = CIDClientID
	}
	if cfg.ScopeDelimiter == "" {
		cfg.ScopeDelimiter = " "
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Codec{signer: signer, cfg: cfg}
}

// Signer returns the underlying signer
func (c *Codec) Signer() Signer {
	return c.signer
}

func (c *Codec) now() time.Time {
	return c.cfg.Now()
}

// SignAccessToken builds the access token claims and signs them.
// Access tokens are never sealed so resource servers can verify them.
func (c *Codec) SignAccessToken(ctx context.Context, token *storage.Token, audience []string, extra map[string]any) (string, error) {
	m, err := c.AccessTokenClaims(ctx, token, audience, extra)
	if err != nil {
		return "", err
	}
	signed, err := c.signer.Sign(ctx, m)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies a self-encoded access token and returns its claims
func (c *Codec) ParseAccessToken(ctx context.Context, raw string) (map[string]any, error) {
	m, err := c.signer.Verify(ctx, raw)
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// EncodeRefreshToken signs and optionally seals a refresh token payload
func (c *Codec) EncodeRefreshToken(ctx context.Context, rt *RefreshToken) (string, error) {
	return c.encode(ctx, rt.Map())
}

// DecodeRefreshToken reverses EncodeRefreshToken
func (c *Codec) DecodeRefreshToken(ctx context.Context, raw string) (*RefreshToken, error) {
	m, err := c.decode(ctx, raw)
	if err != nil {
		return nil, err
	}
	return ParseRefreshToken(m), nil
}

// EncodeAuthCode signs and optionally seals an authorization code payload
func (c *Codec) EncodeAuthCode(ctx context.Context, ac *AuthCode) (string, error) {
	return c.encode(ctx, ac.Map())
}

// DecodeAuthCode reverses EncodeAuthCode
func (c *Codec) DecodeAuthCode(ctx context.Context, raw string) (*AuthCode, error) {
	m, err := c.decode(ctx, raw)
	if err != nil {
		return nil, err
	}
	return ParseAuthCode(m), nil
}

func (c *Codec) encode(ctx context.Context, m map[string]any) (string, error) {
	signed, err := c.signer.Sign(ctx, m)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	sealed, err := c.cfg.Encryptor.Seal(signed)
	if err != nil {
		return "", fmt.Errorf("failed to seal: %w", err)
	}
	return sealed, nil
}

func (c *Codec) decode(ctx context.Context, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty value", ErrCannotDecrypt)
	}
	signed, err := c.cfg.Encryptor.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotDecrypt, err)
	}
	m, err := c.signer.Verify(ctx, signed)
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// classify makes sure every verification error carries one of the sentinels.
// Anything a signer did not classify is treated as undecodable.
func classify(err error) error {
	if errors.Is(err, ErrCannotVerify) || errors.Is(err, ErrCannotDecrypt) || errors.Is(err, ErrExpired) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCannotDecrypt, err)
}
