package grant

import (
	"context"
	"time"

	oauth "github.com/giantswarm/oauth-core"
)

// ClientCredentialsGrant issues access tokens to clients acting on their own
// behalf (RFC 6749 Section 4.4). No refresh token is issued.
type ClientCredentialsGrant struct {
	Base
}

// NewClientCredentialsGrant needs only the common dependencies
func NewClientCredentialsGrant(deps Dependencies, opts Options) (*ClientCredentialsGrant, error) {
	base, err := NewBase(ClientCredentials, deps, opts)
	if err != nil {
		return nil, err
	}
	return &ClientCredentialsGrant{Base: base}, nil
}

// RespondToAccessTokenRequest authenticates the client and issues an access token
func (g *ClientCredentialsGrant) RespondToAccessTokenRequest(ctx context.Context, req *oauth.Request, ttl time.Duration) (*oauth.Response, error) {
	if _, err := g.ResolveGrantType(req); err != nil {
		return nil, err
	}

	client, err := g.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	scopes, err := g.ValidateScopes(ctx, req.BodyParams("scope")...)
	if err != nil {
		return nil, err
	}
	if err := GuardAgainstClientScopes(scopes, client); err != nil {
		return nil, err
	}
	scopes, err = g.FinalizeScopes(ctx, scopes, client, "")
	if err != nil {
		return nil, err
	}

	token, err := g.IssueAccessToken(ctx, ttl, client, nil, scopes, "")
	if err != nil {
		return nil, err
	}

	audience := requestAudience(req.BodyParams("audience"), req.BodyParams("aud"))
	return g.MakeBearerTokenResponse(ctx, token, audience, nil)
}
