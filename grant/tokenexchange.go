package grant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	oauth "github.com/giantswarm/oauth-core"
)

// TokenTypeAccessToken is the issued_token_type of exchanged tokens (RFC 8693 Section 3)
const TokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"

var tokenTypeURN = regexp.MustCompile(`^urn:.+:oauth:token-type:.+$`)

// TokenExchangeGrant implements OAuth 2.0 Token Exchange (RFC 8693).
// Validating the subject and actor tokens is delegated to a TokenExchangeFunc.
type TokenExchangeGrant struct {
	Base
	exchange TokenExchangeFunc
}

// NewTokenExchangeGrant requires a TokenExchangeFunc in addition to the
// common dependencies
func NewTokenExchangeGrant(deps Dependencies, opts Options) (*TokenExchangeGrant, error) {
	if deps.TokenExchange == nil {
		return nil, fmt.Errorf("grant %s: token exchange function is required", TokenExchange)
	}
	base, err := NewBase(TokenExchange, deps, opts)
	if err != nil {
		return nil, err
	}
	return &TokenExchangeGrant{Base: base, exchange: deps.TokenExchange}, nil
}

// RespondToAccessTokenRequest exchanges a subject token for an access token
func (g *TokenExchangeGrant) RespondToAccessTokenRequest(ctx context.Context, req *oauth.Request, ttl time.Duration) (*oauth.Response, error) {
	if _, err := g.ResolveGrantType(req); err != nil {
		return nil, err
	}

	client, err := g.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	exchangeReq := &TokenExchangeRequest{
		Client:             client,
		SubjectToken:       req.BodyParam("subject_token"),
		SubjectTokenType:   req.BodyParam("subject_token_type"),
		ActorToken:         req.BodyParam("actor_token"),
		ActorTokenType:     req.BodyParam("actor_token_type"),
		RequestedTokenType: req.BodyParam("requested_token_type"),
		Resource:           req.BodyParams("resource"),
		Audience:           requestAudience(req.BodyParams("audience"), req.BodyParams("aud")),
	}

	if exchangeReq.SubjectToken == "" {
		return nil, oauth.ErrInvalidParameter("subject_token")
	}
	if !tokenTypeURN.MatchString(exchangeReq.SubjectTokenType) {
		return nil, oauth.ErrInvalidParameter("subject_token_type", "must be a token type URN")
	}
	if exchangeReq.ActorToken != "" && !tokenTypeURN.MatchString(exchangeReq.ActorTokenType) {
		return nil, oauth.ErrInvalidParameter("actor_token_type", "required with actor_token")
	}

	scopes, err := g.ValidateScopes(ctx, req.BodyParams("scope")...)
	if err != nil {
		return nil, err
	}
	exchangeReq.Scopes = scopes

	user, err := g.exchange(ctx, exchangeReq)
	if err != nil {
		var oauthErr *oauth.Error
		if errors.As(err, &oauthErr) {
			return nil, oauthErr
		}
		return nil, oauth.ErrInvalidGrant("The subject token could not be exchanged").WithCause(err)
	}

	userID := ""
	if user != nil {
		userID = user.ID
	}
	scopes, err = g.FinalizeScopes(ctx, scopes, client, userID)
	if err != nil {
		return nil, err
	}

	token, err := g.IssueAccessToken(ctx, ttl, client, user, scopes, "")
	if err != nil {
		return nil, err
	}

	extra, err := g.extraAccessTokenFields(ctx, user)
	if err != nil {
		return nil, err
	}
	body, err := g.bearerToken(ctx, token, exchangeReq.Audience, extra)
	if err != nil {
		return nil, err
	}
	body.IssuedTokenType = TokenTypeAccessToken
	return noStore(oauth.NewResponse(http.StatusOK, body)), nil
}
