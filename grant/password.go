package grant

import (
	"context"
	"fmt"
	"time"

	oauth "github.com/giantswarm/oauth-core"
)

// PasswordGrant implements the resource owner password credentials grant
// (RFC 6749 Section 4.3)
type PasswordGrant struct {
	Base
}

// NewPasswordGrant requires a user repository in addition to the common dependencies
func NewPasswordGrant(deps Dependencies, opts Options) (*PasswordGrant, error) {
	if deps.Users == nil {
		return nil, fmt.Errorf("grant %s: user repository is required", Password)
	}
	base, err := NewBase(Password, deps, opts)
	if err != nil {
		return nil, err
	}
	return &PasswordGrant{Base: base}, nil
}

// RespondToAccessTokenRequest checks the resource owner's credentials and
// issues an access and refresh token
func (g *PasswordGrant) RespondToAccessTokenRequest(ctx context.Context, req *oauth.Request, ttl time.Duration) (*oauth.Response, error) {
	if _, err := g.ResolveGrantType(req); err != nil {
		return nil, err
	}

	client, err := g.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	username := req.BodyParam("username")
	if username == "" {
		return nil, oauth.ErrInvalidParameter("username")
	}
	password := req.BodyParam("password")
	if password == "" {
		return nil, oauth.ErrInvalidParameter("password")
	}

	user, err := g.users.GetUserByCredentials(ctx, username, password, string(g.id), client)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		g.auditor.LogUserAuthFailure(username, client.ID)
		return nil, oauth.ErrInvalidGrant("The user credentials were incorrect")
	}

	scopes, err := g.ValidateScopes(ctx, req.BodyParams("scope")...)
	if err != nil {
		return nil, err
	}
	scopes, err = g.FinalizeScopes(ctx, scopes, client, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := g.IssueAccessToken(ctx, ttl, client, user, scopes, "")
	if err != nil {
		return nil, err
	}
	token, err = g.IssueRefreshToken(ctx, token, client)
	if err != nil {
		return nil, err
	}

	extra, err := g.extraAccessTokenFields(ctx, user)
	if err != nil {
		return nil, err
	}
	return g.MakeBearerTokenResponse(ctx, token, nil, extra)
}
