package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-core/claims"
	"github.com/giantswarm/oauth-core/storage"
)

var testSecret = []byte(strings.Repeat("s", MinHMACSecretLength))

func signers(t *testing.T) map[string]claims.Signer {
	t.Helper()

	hmac, err := NewHMAC(testSecret)
	require.NoError(t, err)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rs, err := NewRSA(rsaKey, nil)
	require.NoError(t, err)

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	es, err := NewJOSE(gojose.ES256, ecKey, &ecKey.PublicKey, "key-1")
	require.NoError(t, err)

	return map[string]claims.Signer{
		"HS256 golang-jwt": hmac,
		"RS256 golang-jwt": rs,
		"ES256 go-jose":    es,
	}
}

func TestSigners_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range signers(t) {
		t.Run(name, func(t *testing.T) {
			raw, err := s.Sign(ctx, map[string]any{
				"cid":   "client-1",
				"scope": "read write",
				"exp":   time.Now().Add(time.Hour).Unix(),
			})
			require.NoError(t, err)
			assert.Equal(t, 2, strings.Count(raw, "."))

			got, err := s.Verify(ctx, raw)
			require.NoError(t, err)
			assert.Equal(t, "client-1", claims.String(got, "cid"))
			assert.Equal(t, "read write", claims.String(got, "scope"))
		})
	}
}

func TestSigners_TamperedSignature(t *testing.T) {
	ctx := context.Background()
	for name, s := range signers(t) {
		t.Run(name, func(t *testing.T) {
			raw, err := s.Sign(ctx, map[string]any{"sub": "user-1"})
			require.NoError(t, err)

			parts := strings.Split(raw, ".")
			other, err := s.Sign(ctx, map[string]any{"sub": "user-2"})
			require.NoError(t, err)
			// payload of one token with the signature of another
			forged := parts[0] + "." + strings.Split(other, ".")[1] + "." + parts[2]

			_, err = s.Verify(ctx, forged)
			assert.True(t, errors.Is(err, claims.ErrCannotVerify), "got %v", err)
		})
	}
}

func TestSigners_Malformed(t *testing.T) {
	ctx := context.Background()
	for name, s := range signers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(ctx, "not-a-token")
			assert.True(t, errors.Is(err, claims.ErrCannotDecrypt), "got %v", err)
		})
	}
}

func TestSigners_Expired(t *testing.T) {
	ctx := context.Background()
	for name, s := range signers(t) {
		t.Run(name, func(t *testing.T) {
			raw, err := s.Sign(ctx, map[string]any{"exp": time.Now().Add(-time.Hour).Unix()})
			require.NoError(t, err)

			_, err = s.Verify(ctx, raw)
			assert.True(t, errors.Is(err, claims.ErrExpired), "got %v", err)
		})
	}
}

func TestSigners_Clock(t *testing.T) {
	ctx := context.Background()
	hmac, err := NewHMAC(testSecret)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	es, err := NewJOSE(gojose.ES256, ecKey, &ecKey.PublicKey, "")
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	clocked := map[string]claims.Signer{
		"golang-jwt": hmac.WithClock(func() time.Time { return later }),
		"go-jose":    es.WithClock(func() time.Time { return later }),
	}

	for name, s := range clocked {
		t.Run(name, func(t *testing.T) {
			// issued on the same clock the verifier runs on
			future, err := s.Sign(ctx, map[string]any{
				"nbf": later.Unix(),
				"iat": later.Unix(),
				"exp": later.Add(time.Minute).Unix(),
			})
			require.NoError(t, err)
			_, err = s.Verify(ctx, future)
			require.NoError(t, err)

			// valid by wall clock, expired on the signer's clock
			now, err := s.Sign(ctx, map[string]any{"exp": time.Now().Add(time.Minute).Unix()})
			require.NoError(t, err)
			_, err = s.Verify(ctx, now)
			assert.True(t, errors.Is(err, claims.ErrExpired), "got %v", err)
		})
	}
}

func TestJWT_WrongKey(t *testing.T) {
	ctx := context.Background()
	a, err := NewHMAC(testSecret)
	require.NoError(t, err)
	b, err := NewHMAC([]byte(strings.Repeat("t", MinHMACSecretLength)))
	require.NoError(t, err)

	raw, err := a.Sign(ctx, map[string]any{"sub": "x"})
	require.NoError(t, err)

	_, err = b.Verify(ctx, raw)
	assert.ErrorIs(t, err, claims.ErrCannotVerify)
}

func TestJWT_RejectsOtherAlgorithm(t *testing.T) {
	ctx := context.Background()
	hmac, err := NewHMAC(testSecret)
	require.NoError(t, err)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rs, err := NewRSA(rsaKey, nil)
	require.NoError(t, err)

	raw, err := hmac.Sign(ctx, map[string]any{"sub": "x"})
	require.NoError(t, err)

	_, err = rs.Verify(ctx, raw)
	assert.ErrorIs(t, err, claims.ErrCannotVerify)
}

func TestNewHMAC_ShortSecret(t *testing.T) {
	_, err := NewHMAC([]byte("short"))
	assert.Error(t, err)
}

func TestVerifyOnlySigners(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifyOnly, err := NewRSA(nil, &rsaKey.PublicKey)
	require.NoError(t, err)
	_, err = verifyOnly.Sign(context.Background(), map[string]any{})
	assert.Error(t, err)

	full, err := NewRSA(rsaKey, nil)
	require.NoError(t, err)
	raw, err := full.Sign(context.Background(), map[string]any{"sub": "x"})
	require.NoError(t, err)
	got, err := verifyOnly.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "x", got["sub"])

	_, err = NewJOSE(gojose.RS256, nil, nil, "")
	assert.Error(t, err)
}

func TestExtraTokenFields(t *testing.T) {
	s, err := NewHMAC(testSecret)
	require.NoError(t, err)

	fields, err := s.ExtraTokenFields(context.Background(), &storage.Token{}, nil)
	require.NoError(t, err)
	assert.Nil(t, fields)

	s.WithExtraTokenFields(func(_ context.Context, _ *storage.Token, client *storage.Client) (map[string]any, error) {
		return map[string]any{"tenant": client.ID}, nil
	})
	fields, err = s.ExtraTokenFields(context.Background(), &storage.Token{}, &storage.Client{ID: "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tenant": "c"}, fields)
}
