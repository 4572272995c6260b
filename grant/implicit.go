package grant

import (
	"context"
	"net/url"
	"strconv"
	"time"

	oauth "github.com/giantswarm/oauth-core"
)

// ImplicitGrant delivers an access token in the redirect fragment
// (RFC 6749 Section 4.2). It has no token endpoint flow and never issues
// refresh tokens.
type ImplicitGrant struct {
	Base
}

// NewImplicitGrant needs only the common dependencies
func NewImplicitGrant(deps Dependencies, opts Options) (*ImplicitGrant, error) {
	base, err := NewBase(Implicit, deps, opts)
	if err != nil {
		return nil, err
	}
	return &ImplicitGrant{Base: base}, nil
}

// CanRespondToAccessTokenRequest is always false
func (g *ImplicitGrant) CanRespondToAccessTokenRequest(*oauth.Request) bool {
	return false
}

// CanRespondToAuthorizationRequest matches response_type=token
func (g *ImplicitGrant) CanRespondToAuthorizationRequest(req *oauth.Request) bool {
	return req.QueryParam("response_type") == "token"
}

// ValidateAuthorizationRequest checks client, redirect URI and scopes
func (g *ImplicitGrant) ValidateAuthorizationRequest(ctx context.Context, req *oauth.Request) (*AuthorizationRequest, error) {
	authReq, err := g.validateClientRedirect(ctx, req)
	if err != nil {
		return nil, err
	}

	scopes, err := g.ValidateScopes(ctx, req.QueryParams("scope")...)
	if err != nil {
		return nil, err
	}
	if err := GuardAgainstClientScopes(scopes, authReq.Client); err != nil {
		return nil, err
	}
	scopes, err = g.FinalizeScopes(ctx, scopes, authReq.Client, "")
	if err != nil {
		return nil, err
	}

	authReq.Scopes = scopes
	authReq.State = req.QueryParam("state")
	authReq.Audience = requestAudience(req.QueryParams("audience"), req.QueryParams("aud"))
	return authReq, nil
}

// CompleteAuthorizationRequest issues the access token and redirects with it in the fragment
func (g *ImplicitGrant) CompleteAuthorizationRequest(ctx context.Context, authReq *AuthorizationRequest, ttl time.Duration) (*oauth.Response, error) {
	if authReq.User == nil {
		return nil, oauth.ErrInvalidRequest("A user must be set on the authorization request")
	}
	if !authReq.Approved {
		g.auditor.LogAuthorizationDenied(authReq.User.ID, authReq.Client.ID, string(g.id))
		g.metrics.RecordAuthorizationCompleted(ctx, string(g.id), false)
		return nil, oauth.ErrAccessDenied("The resource owner denied the request")
	}

	scopes, err := g.FinalizeScopes(ctx, authReq.Scopes, authReq.Client, authReq.User.ID)
	if err != nil {
		return nil, err
	}

	token, err := g.IssueAccessToken(ctx, ttl, authReq.Client, authReq.User, scopes, "")
	if err != nil {
		return nil, err
	}

	extra, err := g.extraAccessTokenFields(ctx, authReq.User)
	if err != nil {
		return nil, err
	}
	body, err := g.bearerToken(ctx, token, authReq.Audience, extra)
	if err != nil {
		return nil, err
	}

	g.metrics.RecordAuthorizationCompleted(ctx, string(g.id), true)

	fragment := url.Values{
		"access_token": {body.AccessToken},
		"token_type":   {body.TokenType},
		"expires_in":   {strconv.FormatInt(body.ExpiresIn, 10)},
		"scope":        {body.Scope},
	}
	if authReq.State != "" {
		fragment.Set("state", authReq.State)
	}
	return oauth.NewRedirectResponse(authReq.RedirectURI + "#" + fragment.Encode()), nil
}
