package grant_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/internal/testutil"
	"github.com/giantswarm/oauth-core/storage"
)

const testTTL = time.Hour

const restrictedClientID = "cc-only"

// registerRestrictedClient adds a public client limited to the given grants
func registerRestrictedClient(t *testing.T, f *testutil.Fixture, grants ...string) {
	t.Helper()
	err := f.Store.Clients().Register(context.Background(), &storage.Client{
		ID:            restrictedClientID,
		RedirectURIs:  []string{testutil.LoopbackRedirectURI},
		Scopes:        []storage.Scope{{Name: "read"}},
		AllowedGrants: grants,
	})
	require.NoError(t, err)
}

// requireOAuthError asserts err is an *oauth.Error with the given code
func requireOAuthError(t *testing.T, err error, code string) *oauth.Error {
	t.Helper()
	require.Error(t, err)
	oe := oauth.AsError(err)
	require.Equal(t, code, oe.Code, "description: %s, cause: %v", oe.Description, oe.Err)
	return oe
}

// requireBearer asserts a 200 bearer response and returns its body
func requireBearer(t *testing.T, resp *oauth.Response, err error) *oauth.BearerTokenResponse {
	t.Helper()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "no-store", resp.Headers.Get("Cache-Control"))
	require.Equal(t, "no-cache", resp.Headers.Get("Pragma"))
	body, ok := resp.Body.(*oauth.BearerTokenResponse)
	require.True(t, ok, "unexpected body type %T", resp.Body)
	require.Equal(t, oauth.TokenTypeBearer, body.TokenType)
	require.NotEmpty(t, body.AccessToken)
	return body
}

// accessTokenID returns the jti of a signed access token
func accessTokenID(t *testing.T, f *testutil.Fixture, accessToken string) string {
	t.Helper()
	m, err := f.Signer.Verify(context.Background(), accessToken)
	require.NoError(t, err)
	jti, _ := m["jti"].(string)
	require.NotEmpty(t, jti)
	return jti
}

func newAuthCodeGrant(t *testing.T, f *testutil.Fixture, mutate ...func(*grant.Options)) *grant.AuthCodeGrant {
	t.Helper()
	opts := f.Options()
	for _, m := range mutate {
		m(&opts)
	}
	g, err := grant.NewAuthCodeGrant(f.Dependencies(), opts)
	require.NoError(t, err)
	return g
}

func newRefreshGrant(t *testing.T, f *testutil.Fixture, mutate ...func(*grant.Options)) *grant.RefreshTokenGrant {
	t.Helper()
	opts := f.Options()
	for _, m := range mutate {
		m(&opts)
	}
	g, err := grant.NewRefreshTokenGrant(f.Dependencies(), opts)
	require.NoError(t, err)
	return g
}

func newPasswordGrant(t *testing.T, f *testutil.Fixture) *grant.PasswordGrant {
	t.Helper()
	g, err := grant.NewPasswordGrant(f.Dependencies(), f.Options())
	require.NoError(t, err)
	return g
}

// authorize runs the authorize phase for the public client and returns the
// issued code
func authorize(t *testing.T, g *grant.AuthCodeGrant, redirectURI, challenge, method string) string {
	t.Helper()
	ctx := context.Background()

	params := map[string]string{
		"response_type": "code",
		"client_id":     testutil.PublicClientID,
		"redirect_uri":  redirectURI,
		"scope":         "read",
		"state":         "xyz",
	}
	if challenge != "" {
		params["code_challenge"] = challenge
		params["code_challenge_method"] = method
	}

	authReq, err := g.ValidateAuthorizationRequest(ctx, testutil.AuthorizeRequest(params))
	require.NoError(t, err)
	authReq.SetUser(&storage.User{ID: testutil.UserID})
	authReq.SetApproved(true)

	resp, err := g.CompleteAuthorizationRequest(ctx, authReq, testTTL)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.Status)

	location, err := url.Parse(resp.Location())
	require.NoError(t, err)
	require.Equal(t, "xyz", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

// passwordTokens obtains a token pair for the fixture user with the given scope
func passwordTokens(t *testing.T, f *testutil.Fixture, scope string) *oauth.BearerTokenResponse {
	t.Helper()
	g := newPasswordGrant(t, f)
	req := testutil.TokenRequest(map[string]string{
		"grant_type":    "password",
		"client_id":     testutil.ConfidentialClientID,
		"client_secret": testutil.ConfidentialSecret,
		"username":      testutil.UserID,
		"password":      testutil.UserPassword,
		"scope":         scope,
	})
	resp, err := g.RespondToAccessTokenRequest(context.Background(), req, testTTL)
	body := requireBearer(t, resp, err)
	require.NotEmpty(t, body.RefreshToken)
	return body
}
