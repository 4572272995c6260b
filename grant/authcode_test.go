package grant_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/internal/testutil"
	"github.com/giantswarm/oauth-core/pkce"
	"github.com/giantswarm/oauth-core/storage"
)

// loopback redirect on an ephemeral port, matched against the registered
// port-less loopback URI
const ephemeralRedirect = "http://127.0.0.1:54321/callback"

func codeTokenRequest(code, redirectURI, verifier string) *oauth.Request {
	params := map[string]string{
		"grant_type":   "authorization_code",
		"client_id":    testutil.PublicClientID,
		"code":         code,
		"redirect_uri": redirectURI,
	}
	if verifier != "" {
		params["code_verifier"] = verifier
	}
	return testutil.TokenRequest(params)
}

func TestAuthCodeGrant_S256Flow(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f)
	ctx := context.Background()

	challenge, verifier := testutil.GeneratePKCEPair()
	code := authorize(t, g, ephemeralRedirect, challenge, pkce.MethodS256)

	resp, err := g.RespondToAccessTokenRequest(ctx, codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
	body := requireBearer(t, resp, err)
	assert.NotEmpty(t, body.RefreshToken)
	assert.Equal(t, "read", body.Scope)
	assert.Equal(t, int64(3600), body.ExpiresIn)

	m, err := f.Signer.Verify(ctx, body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testutil.UserID, m["sub"])
	assert.Equal(t, testutil.PublicClientID, m["cid"])
	assert.Equal(t, "read", m["scope"])
	assert.Equal(t, testutil.UserEmail, m["email"])

	t.Run("replayed code is rejected and revokes issued tokens", func(t *testing.T) {
		_, err := g.RespondToAccessTokenRequest(ctx, codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
		requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)

		assert.True(t, f.Store.Tokens().IsRevoked(accessTokenID(t, f, body.AccessToken)))

		refresh := newRefreshGrant(t, f)
		_, err = refresh.RespondToAccessTokenRequest(ctx, testutil.TokenRequest(map[string]string{
			"grant_type":    "refresh_token",
			"client_id":     testutil.PublicClientID,
			"refresh_token": body.RefreshToken,
		}), testTTL)
		requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
	})
}

func TestAuthCodeGrant_PlainChallenge(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f)

	verifier := testutil.GenerateRandomString(64)
	code := authorize(t, g, ephemeralRedirect, verifier, pkce.MethodPlain)

	resp, err := g.RespondToAccessTokenRequest(context.Background(), codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
	requireBearer(t, resp, err)
}

func TestAuthCodeGrant_RequiresS256(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f, func(o *grant.Options) { o.RequiresS256 = true })

	verifier := testutil.GenerateRandomString(64)
	_, err := g.ValidateAuthorizationRequest(context.Background(), testutil.AuthorizeRequest(map[string]string{
		"response_type":         "code",
		"client_id":             testutil.PublicClientID,
		"redirect_uri":          ephemeralRedirect,
		"code_challenge":        verifier,
		"code_challenge_method": pkce.MethodPlain,
	}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)
}

func TestAuthCodeGrant_ValidateAuthorizationRequest(t *testing.T) {
	challenge, _ := testutil.GeneratePKCEPair()

	tests := []struct {
		name     string
		params   map[string]string
		wantCode string
	}{
		{
			name:     "missing challenge when pkce is required",
			params:   map[string]string{"client_id": testutil.PublicClientID, "redirect_uri": ephemeralRedirect},
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name:     "missing client id",
			params:   map[string]string{"redirect_uri": ephemeralRedirect, "code_challenge": challenge, "code_challenge_method": "S256"},
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name:     "unknown client",
			params:   map[string]string{"client_id": "nobody", "redirect_uri": ephemeralRedirect, "code_challenge": challenge, "code_challenge_method": "S256"},
			wantCode: oauth.ErrorCodeInvalidClient,
		},
		{
			name:     "redirect uri not registered",
			params:   map[string]string{"client_id": testutil.PublicClientID, "redirect_uri": "http://127.0.0.1/other", "code_challenge": challenge, "code_challenge_method": "S256"},
			wantCode: oauth.ErrorCodeInvalidClient,
		},
		{
			name:     "unsupported challenge method",
			params:   map[string]string{"client_id": testutil.PublicClientID, "redirect_uri": ephemeralRedirect, "code_challenge": challenge, "code_challenge_method": "S512"},
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name:     "malformed challenge",
			params:   map[string]string{"client_id": testutil.PublicClientID, "redirect_uri": ephemeralRedirect, "code_challenge": "short", "code_challenge_method": "S256"},
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name:     "unknown scope",
			params:   map[string]string{"client_id": testutil.PublicClientID, "redirect_uri": ephemeralRedirect, "code_challenge": challenge, "code_challenge_method": "S256", "scope": "read bogus"},
			wantCode: oauth.ErrorCodeInvalidScope,
		},
		{
			name:     "scope not allowed for client",
			params:   map[string]string{"client_id": testutil.PublicClientID, "redirect_uri": ephemeralRedirect, "code_challenge": challenge, "code_challenge_method": "S256", "scope": "write"},
			wantCode: oauth.ErrorCodeInvalidScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.NewFixture(t)
			g := newAuthCodeGrant(t, f)

			params := map[string]string{"response_type": "code"}
			for k, v := range tt.params {
				params[k] = v
			}
			authReq, err := g.ValidateAuthorizationRequest(context.Background(), testutil.AuthorizeRequest(params))
			requireOAuthError(t, err, tt.wantCode)
			assert.Nil(t, authReq)
		})
	}
}

func TestAuthCodeGrant_ValidateRecordsRequest(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f)
	challenge, _ := testutil.GeneratePKCEPair()

	req := testutil.AuthorizeRequest(map[string]string{
		"response_type":         "code",
		"client_id":             testutil.PublicClientID,
		"redirect_uri":          ephemeralRedirect,
		"scope":                 "read",
		"state":                 "abc",
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
		"audience":              "https://api.example.com",
	})
	require.True(t, g.CanRespondToAuthorizationRequest(req))

	authReq, err := g.ValidateAuthorizationRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, grant.AuthorizationCode, authReq.GrantTypeID)
	assert.Equal(t, testutil.PublicClientID, authReq.Client.ID)
	assert.Equal(t, ephemeralRedirect, authReq.RedirectURI)
	assert.Equal(t, []string{"read"}, storage.ScopeNames(authReq.Scopes))
	assert.Equal(t, "abc", authReq.State)
	assert.Equal(t, challenge, authReq.CodeChallenge)
	assert.Equal(t, "S256", authReq.CodeChallengeMethod)
	assert.Equal(t, []string{"https://api.example.com"}, authReq.Audience)
	assert.Nil(t, authReq.User)
	assert.False(t, authReq.Approved)
}

func TestAuthCodeGrant_Denied(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f)
	challenge, _ := testutil.GeneratePKCEPair()

	authReq, err := g.ValidateAuthorizationRequest(context.Background(), testutil.AuthorizeRequest(map[string]string{
		"response_type":         "code",
		"client_id":             testutil.PublicClientID,
		"redirect_uri":          ephemeralRedirect,
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
	}))
	require.NoError(t, err)

	_, err = g.CompleteAuthorizationRequest(context.Background(), authReq, testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)

	authReq.SetUser(f.User)
	_, err = g.CompleteAuthorizationRequest(context.Background(), authReq, testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeAccessDenied)
}

func TestAuthCodeGrant_TokenRequestFailures(t *testing.T) {
	challenge, verifier := testutil.GeneratePKCEPair()
	_, otherVerifier := testutil.GeneratePKCEPair()

	tests := []struct {
		name     string
		mutate   func(req *oauth.Request)
		wantCode string
	}{
		{
			name:     "wrong verifier",
			mutate:   func(req *oauth.Request) { req.Body.Set("code_verifier", otherVerifier) },
			wantCode: oauth.ErrorCodeInvalidGrant,
		},
		{
			name:     "missing verifier",
			mutate:   func(req *oauth.Request) { req.Body.Del("code_verifier") },
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name:     "verifier grammar",
			mutate:   func(req *oauth.Request) { req.Body.Set("code_verifier", "too-short") },
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name:     "redirect uri mismatch",
			mutate:   func(req *oauth.Request) { req.Body.Set("redirect_uri", "http://127.0.0.1:1/callback") },
			wantCode: oauth.ErrorCodeInvalidGrant,
		},
		{
			name:     "missing redirect uri",
			mutate:   func(req *oauth.Request) { req.Body.Del("redirect_uri") },
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name:     "missing code",
			mutate:   func(req *oauth.Request) { req.Body.Del("code") },
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name:     "tampered code",
			mutate:   func(req *oauth.Request) { req.Body.Set("code", req.Body.Get("code")+"x") },
			wantCode: oauth.ErrorCodeInvalidGrant,
		},
		{
			name: "code issued to another client",
			mutate: func(req *oauth.Request) {
				req.Body.Set("client_id", testutil.ConfidentialClientID)
				req.Body.Set("client_secret", testutil.ConfidentialSecret)
			},
			wantCode: oauth.ErrorCodeInvalidGrant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.NewFixture(t)
			g := newAuthCodeGrant(t, f)
			code := authorize(t, g, ephemeralRedirect, challenge, pkce.MethodS256)

			req := codeTokenRequest(code, ephemeralRedirect, verifier)
			tt.mutate(req)
			_, err := g.RespondToAccessTokenRequest(context.Background(), req, testTTL)
			requireOAuthError(t, err, tt.wantCode)
		})
	}
}

func TestAuthCodeGrant_VerifierWithoutChallenge(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f, func(o *grant.Options) { o.RequiresPKCE = false })

	code := authorize(t, g, ephemeralRedirect, "", "")
	_, verifier := testutil.GeneratePKCEPair()

	_, err := g.RespondToAccessTokenRequest(context.Background(), codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)

	// the failed attempt did not consume the code
	resp, err := g.RespondToAccessTokenRequest(context.Background(), codeTokenRequest(code, ephemeralRedirect, ""), testTTL)
	requireBearer(t, resp, err)
}

func TestAuthCodeGrant_ExpiredCode(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f)
	challenge, verifier := testutil.GeneratePKCEPair()
	code := authorize(t, g, ephemeralRedirect, challenge, pkce.MethodS256)

	f.Clock.Advance(grant.DefaultAuthorizationCodeTTL + time.Second)

	_, err := g.RespondToAccessTokenRequest(context.Background(), codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
}

func TestAuthCodeGrant_OpaqueCodes(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f, func(o *grant.Options) {
		o.UseOpaqueAuthorizationCodes = true
		o.UseOpaqueRefreshTokens = true
	})
	ctx := context.Background()

	challenge, verifier := testutil.GeneratePKCEPair()
	code := authorize(t, g, ephemeralRedirect, challenge, pkce.MethodS256)

	stored, err := f.Store.AuthCodes().GetByIdentifier(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, testutil.PublicClientID, stored.Client.ID)

	resp, err := g.RespondToAccessTokenRequest(ctx, codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
	body := requireBearer(t, resp, err)

	token, err := f.Store.Tokens().GetByRefreshToken(ctx, body.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, code, token.OriginatingAuthCodeID)

	_, err = g.RespondToAccessTokenRequest(ctx, codeTokenRequest("unknown-code", ephemeralRedirect, verifier), testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
}

func TestAuthCodeGrant_CompleteRedirect(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f)
	challenge, _ := testutil.GeneratePKCEPair()

	authReq, err := g.ValidateAuthorizationRequest(context.Background(), testutil.AuthorizeRequest(map[string]string{
		"response_type":         "code",
		"client_id":             testutil.ConfidentialClientID,
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
	}))
	require.NoError(t, err)
	assert.Equal(t, testutil.RedirectURI, authReq.RedirectURI)

	authReq.SetUser(f.User)
	authReq.SetApproved(true)
	resp, err := g.CompleteAuthorizationRequest(context.Background(), authReq, testTTL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)

	location, err := url.Parse(resp.Location())
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", location.Host)
	assert.NotEmpty(t, location.Query().Get("code"))
	assert.False(t, location.Query().Has("state"))
}

func TestAuthCodeGrant_RevokeCode(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f, func(o *grant.Options) { o.AuthenticateRevoke = false })
	ctx := context.Background()

	challenge, verifier := testutil.GeneratePKCEPair()
	code := authorize(t, g, ephemeralRedirect, challenge, pkce.MethodS256)

	req := testutil.TokenRequest(map[string]string{
		"token":           code,
		"token_type_hint": grant.TokenTypeHintAuthCode,
	})
	require.True(t, g.CanRespondToRevokeRequest(req))

	resp, err := g.RespondToRevokeRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	_, err = g.RespondToAccessTokenRequest(ctx, codeTokenRequest(code, ephemeralRedirect, verifier), testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
}

func TestAuthCodeGrant_RequiresAuthCodeRepository(t *testing.T) {
	f := testutil.NewFixture(t)
	deps := f.Dependencies()
	deps.AuthCodes = nil

	_, err := grant.NewAuthCodeGrant(deps, f.Options())
	assert.Error(t, err)
}

func TestAuthCodeGrant_ClientGrantNotAllowed(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newAuthCodeGrant(t, f)
	registerRestrictedClient(t, f, string(grant.ClientCredentials))
	challenge, _ := testutil.GeneratePKCEPair()

	_, err := g.ValidateAuthorizationRequest(context.Background(), testutil.AuthorizeRequest(map[string]string{
		"response_type":         "code",
		"client_id":             restrictedClientID,
		"redirect_uri":          ephemeralRedirect,
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
	}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidClient)
}
