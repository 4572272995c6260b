package grant_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/internal/testutil"
)

func newImplicitGrant(t *testing.T, f *testutil.Fixture) *grant.ImplicitGrant {
	t.Helper()
	g, err := grant.NewImplicitGrant(f.Dependencies(), f.Options())
	require.NoError(t, err)
	return g
}

func TestImplicitGrant(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newImplicitGrant(t, f)
	ctx := context.Background()

	req := testutil.AuthorizeRequest(map[string]string{
		"response_type": "token",
		"client_id":     testutil.PublicClientID,
		"redirect_uri":  ephemeralRedirect,
		"scope":         "read",
		"state":         "s1",
	})
	require.True(t, g.CanRespondToAuthorizationRequest(req))
	assert.False(t, g.CanRespondToAccessTokenRequest(testutil.TokenRequest(map[string]string{"grant_type": "implicit"})))

	authReq, err := g.ValidateAuthorizationRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, grant.Implicit, authReq.GrantTypeID)

	authReq.SetUser(f.User)
	authReq.SetApproved(true)
	resp, err := g.CompleteAuthorizationRequest(ctx, authReq, testTTL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)

	location, err := url.Parse(resp.Location())
	require.NoError(t, err)
	assert.Empty(t, location.RawQuery)
	fragment, err := url.ParseQuery(location.Fragment)
	require.NoError(t, err)

	assert.NotEmpty(t, fragment.Get("access_token"))
	assert.Equal(t, oauth.TokenTypeBearer, fragment.Get("token_type"))
	assert.Equal(t, "3600", fragment.Get("expires_in"))
	assert.Equal(t, "read", fragment.Get("scope"))
	assert.Equal(t, "s1", fragment.Get("state"))
	assert.False(t, fragment.Has("refresh_token"))

	m, err := f.Signer.Verify(ctx, fragment.Get("access_token"))
	require.NoError(t, err)
	assert.Equal(t, testutil.UserID, m["sub"])
}

func TestImplicitGrant_Failures(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newImplicitGrant(t, f)
	ctx := context.Background()

	_, err := g.ValidateAuthorizationRequest(ctx, testutil.AuthorizeRequest(map[string]string{
		"response_type": "token",
		"client_id":     testutil.PublicClientID,
		"redirect_uri":  "https://evil.example.com/callback",
	}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidClient)

	_, err = g.ValidateAuthorizationRequest(ctx, testutil.AuthorizeRequest(map[string]string{
		"response_type": "token",
		"client_id":     testutil.PublicClientID,
		"scope":         "write",
	}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidScope)

	authReq, err := g.ValidateAuthorizationRequest(ctx, testutil.AuthorizeRequest(map[string]string{
		"response_type": "token",
		"client_id":     testutil.PublicClientID,
	}))
	require.NoError(t, err)
	assert.Equal(t, testutil.LoopbackRedirectURI, authReq.RedirectURI)

	authReq.SetUser(f.User)
	_, err = g.CompleteAuthorizationRequest(ctx, authReq, testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeAccessDenied)
}

func TestImplicitGrant_ClientGrantNotAllowed(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newImplicitGrant(t, f)
	registerRestrictedClient(t, f, string(grant.ClientCredentials))

	_, err := g.ValidateAuthorizationRequest(context.Background(), testutil.AuthorizeRequest(map[string]string{
		"response_type": "token",
		"client_id":     restrictedClientID,
		"redirect_uri":  ephemeralRedirect,
		"scope":         "read",
	}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidClient)
}

func TestImplicitGrant_ClientGrantAllowed(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newImplicitGrant(t, f)
	registerRestrictedClient(t, f, string(grant.Implicit))

	authReq, err := g.ValidateAuthorizationRequest(context.Background(), testutil.AuthorizeRequest(map[string]string{
		"response_type": "token",
		"client_id":     restrictedClientID,
		"scope":         "read",
	}))
	require.NoError(t, err)
	assert.Equal(t, restrictedClientID, authReq.Client.ID)
}
