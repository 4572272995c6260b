package grant_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/internal/testutil"
	"github.com/giantswarm/oauth-core/storage"
	"github.com/giantswarm/oauth-core/storage/memory"
)

type countingClients struct {
	storage.ClientRepository
	validations atomic.Int32
}

func (c *countingClients) IsClientValid(ctx context.Context, grantType string, client *storage.Client, secret string) (bool, error) {
	c.validations.Add(1)
	return c.ClientRepository.IsClientValid(ctx, grantType, client, secret)
}

type countingTokens struct {
	storage.TokenRepository
	persists atomic.Int32
}

func (c *countingTokens) Persist(ctx context.Context, token *storage.Token) error {
	c.persists.Add(1)
	return c.TokenRepository.Persist(ctx, token)
}

func newClientCredentialsGrant(t *testing.T, deps grant.Dependencies, opts grant.Options) *grant.ClientCredentialsGrant {
	t.Helper()
	g, err := grant.NewClientCredentialsGrant(deps, opts)
	require.NoError(t, err)
	return g
}

func TestNewBase_RequiredDependencies(t *testing.T) {
	f := testutil.NewFixture(t)

	tests := []struct {
		name   string
		mutate func(*grant.Dependencies)
	}{
		{"clients", func(d *grant.Dependencies) { d.Clients = nil }},
		{"scopes", func(d *grant.Dependencies) { d.Scopes = nil }},
		{"tokens", func(d *grant.Dependencies) { d.Tokens = nil }},
		{"signer", func(d *grant.Dependencies) { d.Signer = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := f.Dependencies()
			tt.mutate(&deps)
			_, err := grant.NewBase(grant.ClientCredentials, deps, f.Options())
			assert.Error(t, err)
		})
	}

	b, err := grant.NewBase(grant.ClientCredentials, f.Dependencies(), f.Options())
	require.NoError(t, err)
	assert.Equal(t, grant.ClientCredentials, b.Identifier())
	assert.NotNil(t, b.Codec())
}

func TestBase_AuthenticateClient(t *testing.T) {
	tests := []struct {
		name     string
		req      func() *oauth.Request
		wantID   string
		wantCode string
	}{
		{
			name: "body credentials",
			req: func() *oauth.Request {
				return testutil.TokenRequest(map[string]string{"client_id": testutil.ConfidentialClientID, "client_secret": testutil.ConfidentialSecret})
			},
			wantID: testutil.ConfidentialClientID,
		},
		{
			name: "basic credentials",
			req: func() *oauth.Request {
				return testutil.WithBasicAuth(testutil.TokenRequest(nil), testutil.ConfidentialClientID, testutil.ConfidentialSecret)
			},
			wantID: testutil.ConfidentialClientID,
		},
		{
			name: "body overrides basic",
			req: func() *oauth.Request {
				req := testutil.WithBasicAuth(testutil.TokenRequest(nil), testutil.ConfidentialClientID, "wrong")
				req.Body.Set("client_secret", testutil.ConfidentialSecret)
				return req
			},
			wantID: testutil.ConfidentialClientID,
		},
		{
			name: "public client without secret",
			req: func() *oauth.Request {
				return testutil.TokenRequest(map[string]string{"client_id": testutil.PublicClientID})
			},
			wantID: testutil.PublicClientID,
		},
		{
			name:     "missing client id",
			req:      func() *oauth.Request { return testutil.TokenRequest(nil) },
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
		{
			name: "unknown client",
			req: func() *oauth.Request {
				return testutil.TokenRequest(map[string]string{"client_id": "nobody", "client_secret": "x"})
			},
			wantCode: oauth.ErrorCodeInvalidClient,
		},
		{
			name: "wrong secret",
			req: func() *oauth.Request {
				return testutil.TokenRequest(map[string]string{"client_id": testutil.ConfidentialClientID, "client_secret": "wrong"})
			},
			wantCode: oauth.ErrorCodeInvalidClient,
		},
		{
			name: "malformed basic header",
			req: func() *oauth.Request {
				req := testutil.TokenRequest(nil)
				req.Headers.Set("Authorization", "Basic !!!")
				return req
			},
			wantCode: oauth.ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.NewFixture(t)
			g := newClientCredentialsGrant(t, f.Dependencies(), f.Options())

			client, err := g.AuthenticateClient(context.Background(), tt.req())
			if tt.wantCode != "" {
				oe := requireOAuthError(t, err, tt.wantCode)
				assert.Nil(t, client)
				if tt.wantCode == oauth.ErrorCodeInvalidClient {
					assert.Equal(t, 401, oe.Status)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, client.ID)
		})
	}
}

func TestBase_AuthenticateClient_ConfidentialWithoutSecret(t *testing.T) {
	f := testutil.NewFixture(t)
	clients := &countingClients{ClientRepository: f.Store.Clients()}
	deps := f.Dependencies()
	deps.Clients = clients
	g := newClientCredentialsGrant(t, deps, f.Options())

	_, err := g.AuthenticateClient(context.Background(), testutil.TokenRequest(map[string]string{
		"client_id": testutil.ConfidentialClientID,
	}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidClient)
	assert.Equal(t, int32(0), clients.validations.Load())
}

func TestBase_AuthenticateClient_GrantNotAllowed(t *testing.T) {
	f := testutil.NewFixture(t)
	require.NoError(t, f.Store.Clients().Register(context.Background(), &storage.Client{
		ID:            "restricted",
		Secret:        "restricted-secret",
		AllowedGrants: []string{"authorization_code"},
	}))
	g := newClientCredentialsGrant(t, f.Dependencies(), f.Options())

	_, err := g.AuthenticateClient(context.Background(), testutil.TokenRequest(map[string]string{
		"client_id":     "restricted",
		"client_secret": "restricted-secret",
	}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidClient)
}

func TestBase_ResolveGrantType(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newClientCredentialsGrant(t, f.Dependencies(), f.Options())

	id, err := g.ResolveGrantType(testutil.TokenRequest(map[string]string{"grant_type": "client_credentials"}))
	require.NoError(t, err)
	assert.Equal(t, grant.ClientCredentials, id)

	query := oauth.NewRequest()
	query.Query.Set("grant_type", "client_credentials")
	id, err = g.ResolveGrantType(query)
	require.NoError(t, err)
	assert.Equal(t, grant.ClientCredentials, id)

	_, err = g.ResolveGrantType(testutil.TokenRequest(nil))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)

	_, err = g.ResolveGrantType(testutil.TokenRequest(map[string]string{"grant_type": "password"}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)

	_, err = g.ResolveGrantType(testutil.TokenRequest(map[string]string{"grant_type": "made_up"}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)
}

func TestBase_ValidateScopes(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newClientCredentialsGrant(t, f.Dependencies(), f.Options())
	ctx := context.Background()

	scopes, err := g.ValidateScopes(ctx)
	require.NoError(t, err)
	assert.Empty(t, scopes)

	scopes, err = g.ValidateScopes(ctx, "read  write", "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write", "admin"}, storage.ScopeNames(scopes))

	_, err = g.ValidateScopes(ctx, "read bogus other")
	oe := requireOAuthError(t, err, oauth.ErrorCodeInvalidScope)
	assert.Contains(t, oe.Description, "bogus, other")
}

func TestBase_IssueAccessToken_PersistsOnce(t *testing.T) {
	f := testutil.NewFixture(t)
	tokens := &countingTokens{TokenRepository: f.Store.Tokens()}
	deps := f.Dependencies()
	deps.Tokens = tokens
	g := newClientCredentialsGrant(t, deps, f.Options())

	token, err := g.IssueAccessToken(context.Background(), 0, f.Confidential, nil, []storage.Scope{{Name: "read"}}, "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokens.persists.Load())
	assert.Equal(t, f.Clock.Now().Add(grant.DefaultAccessTokenTTL), token.AccessTokenExpiresAt)
	assert.Equal(t, f.Confidential.ID, token.Client.ID)

	_, err = g.IssueAccessToken(context.Background(), testTTL, f.Public, nil, []storage.Scope{{Name: "write"}}, "")
	requireOAuthError(t, err, oauth.ErrorCodeInvalidScope)
	assert.Equal(t, int32(1), tokens.persists.Load())
}

func TestBase_FinalizeScopes(t *testing.T) {
	var gotUser, gotGrant string
	f := testutil.NewFixture(t, memory.WithFinalizer(func(_ context.Context, scopes []storage.Scope, grantType string, _ *storage.Client, userID string) ([]storage.Scope, error) {
		gotGrant, gotUser = grantType, userID
		return append(scopes, storage.Scope{Name: "write"}), nil
	}))

	resp, err := newPasswordGrant(t, f).RespondToAccessTokenRequest(context.Background(), testutil.TokenRequest(map[string]string{
		"grant_type":    "password",
		"client_id":     testutil.ConfidentialClientID,
		"client_secret": testutil.ConfidentialSecret,
		"username":      testutil.UserID,
		"password":      testutil.UserPassword,
		"scope":         "read",
	}), testTTL)
	body := requireBearer(t, resp, err)
	assert.Equal(t, "read write", body.Scope)
	assert.Equal(t, "password", gotGrant)
	assert.Equal(t, testutil.UserID, gotUser)
}

func TestBase_DefaultGrantMethods(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newClientCredentialsGrant(t, f.Dependencies(), f.Options())
	ctx := context.Background()

	assert.False(t, g.CanRespondToAuthorizationRequest(testutil.AuthorizeRequest(nil)))
	assert.False(t, g.CanRespondToRevokeRequest(testutil.TokenRequest(nil)))
	assert.False(t, g.CanRespondToIntrospectRequest(testutil.TokenRequest(nil)))

	_, err := g.ValidateAuthorizationRequest(ctx, testutil.AuthorizeRequest(nil))
	requireOAuthError(t, err, oauth.ErrorCodeUnsupportedGrantType)
	_, err = g.CompleteAuthorizationRequest(ctx, &grant.AuthorizationRequest{}, testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeUnsupportedGrantType)
}
