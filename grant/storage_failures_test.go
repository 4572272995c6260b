package grant_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/internal/testutil"
	"github.com/giantswarm/oauth-core/pkce"
	"github.com/giantswarm/oauth-core/storage"
	"github.com/giantswarm/oauth-core/storage/mock"
)

var errBackend = errors.New("backend unavailable")

func passwordRequest() *oauth.Request {
	return testutil.TokenRequest(map[string]string{
		"grant_type":    "password",
		"client_id":     testutil.ConfidentialClientID,
		"client_secret": testutil.ConfidentialSecret,
		"username":      testutil.UserID,
		"password":      testutil.UserPassword,
	})
}

func TestPasswordGrant_PersistFailureIsServerError(t *testing.T) {
	f := testutil.NewFixture(t)
	tokens := mock.NewTokenRepository(f.Store.Tokens())
	tokens.PersistFunc = func(context.Context, *storage.Token) error { return errBackend }

	deps := f.Dependencies()
	deps.Tokens = tokens
	g, err := grant.NewPasswordGrant(deps, f.Options())
	require.NoError(t, err)

	_, err = g.RespondToAccessTokenRequest(context.Background(), passwordRequest(), testTTL)
	oe := requireOAuthError(t, err, oauth.ErrorCodeServerError)
	assert.ErrorIs(t, oe, errBackend)
	assert.NotContains(t, oe.Description, errBackend.Error())
	assert.Equal(t, 1, tokens.CallCount("Persist"))
}

func TestPasswordGrant_ClientValidationFailure(t *testing.T) {
	f := testutil.NewFixture(t)
	clients := mock.NewClientRepository(f.Store.Clients())
	clients.IsClientValidFunc = func(context.Context, string, *storage.Client, string) (bool, error) {
		return false, errBackend
	}

	deps := f.Dependencies()
	deps.Clients = clients
	g, err := grant.NewPasswordGrant(deps, f.Options())
	require.NoError(t, err)

	_, err = g.RespondToAccessTokenRequest(context.Background(), passwordRequest(), testTTL)
	oe := requireOAuthError(t, err, oauth.ErrorCodeServerError)
	assert.ErrorIs(t, oe, errBackend)
}

func TestRefreshGrant_LostRotationRace(t *testing.T) {
	f := testutil.NewFixture(t)
	issued := passwordTokens(t, f, "read")

	tokens := mock.NewTokenRepository(f.Store.Tokens())
	tokens.RevokeFunc = func(context.Context, *storage.Token) error { return storage.ErrAlreadyRevoked }

	deps := f.Dependencies()
	deps.Tokens = tokens
	g, err := grant.NewRefreshTokenGrant(deps, f.Options())
	require.NoError(t, err)

	_, err = g.RespondToAccessTokenRequest(context.Background(), testutil.TokenRequest(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     testutil.ConfidentialClientID,
		"client_secret": testutil.ConfidentialSecret,
		"refresh_token": issued.RefreshToken,
	}), testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
	assert.Zero(t, tokens.CallCount("IssueToken"), "the losing rotation must not mint tokens")
}

func TestAuthCodeGrant_LostRedemptionRace(t *testing.T) {
	f := testutil.NewFixture(t)
	tokens := mock.NewTokenRepository(f.Store.Tokens())
	codes := mock.NewAuthCodeRepository(f.Store.AuthCodes())

	deps := f.Dependencies()
	deps.Tokens = tokens
	deps.AuthCodes = codes
	g, err := grant.NewAuthCodeGrant(deps, f.Options())
	require.NoError(t, err)

	challenge, verifier := testutil.GeneratePKCEPair()
	code := authorize(t, g, ephemeralRedirect, challenge, pkce.MethodS256)

	codes.RevokeFunc = func(context.Context, string) error { return storage.ErrAlreadyRevoked }

	var issued *storage.Token
	issue := tokens.IssueTokenFunc
	tokens.IssueTokenFunc = func(ctx context.Context, client *storage.Client, scopes []storage.Scope, user *storage.User) (*storage.Token, error) {
		token, err := issue(ctx, client, scopes, user)
		issued = token
		return token, err
	}

	_, err = g.RespondToAccessTokenRequest(context.Background(), codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
	assert.Equal(t, 1, tokens.CallCount("RevokeDescendantsOf"))

	// Tokens minted before losing the race are revoked by the cascade
	require.NotNil(t, issued)
	assert.True(t, f.Store.Tokens().IsRevoked(issued.AccessToken))
}

func TestAuthCodeGrant_RevokeFailureIsServerError(t *testing.T) {
	f := testutil.NewFixture(t)
	codes := mock.NewAuthCodeRepository(f.Store.AuthCodes())

	deps := f.Dependencies()
	deps.AuthCodes = codes
	g, err := grant.NewAuthCodeGrant(deps, f.Options())
	require.NoError(t, err)

	challenge, verifier := testutil.GeneratePKCEPair()
	code := authorize(t, g, ephemeralRedirect, challenge, pkce.MethodS256)
	codes.RevokeFunc = func(context.Context, string) error { return errBackend }

	_, err = g.RespondToAccessTokenRequest(context.Background(), codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
	oe := requireOAuthError(t, err, oauth.ErrorCodeServerError)
	assert.ErrorIs(t, oe, errBackend)
}

func TestAuthCodeGrant_RevokeOpaqueCodeWithoutRecord(t *testing.T) {
	f := testutil.NewFixture(t)
	codes := mock.NewAuthCodeRepository(f.Store.AuthCodes())
	codes.GetByIdentifierFunc = func(context.Context, string) (*storage.AuthCode, error) { return nil, nil }

	deps := f.Dependencies()
	deps.AuthCodes = codes
	opts := f.Options()
	opts.UseOpaqueAuthorizationCodes = true
	g, err := grant.NewAuthCodeGrant(deps, opts)
	require.NoError(t, err)

	req := testutil.WithBasicAuth(testutil.TokenRequest(map[string]string{
		"token":           "missing-code",
		"token_type_hint": grant.TokenTypeHintAuthCode,
	}), testutil.ConfidentialClientID, testutil.ConfidentialSecret)

	var resp *oauth.Response
	require.NotPanics(t, func() {
		resp, err = g.RespondToRevokeRequest(context.Background(), req)
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 1, codes.CallCount("GetByIdentifier"))
	assert.Zero(t, codes.CallCount("Revoke"))
}
