package grant

import (
	"context"
	"errors"
	"fmt"
	"time"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/claims"
	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/storage"
)

// RefreshTokenGrant implements refresh token rotation (RFC 6749 Section 6).
// It also revokes and introspects access and refresh tokens.
type RefreshTokenGrant struct {
	Base
}

// NewRefreshTokenGrant needs only the common dependencies
func NewRefreshTokenGrant(deps Dependencies, opts Options) (*RefreshTokenGrant, error) {
	base, err := NewBase(RefreshToken, deps, opts)
	if err != nil {
		return nil, err
	}
	return &RefreshTokenGrant{Base: base}, nil
}

// RespondToAccessTokenRequest rotates a refresh token into a new token pair
func (g *RefreshTokenGrant) RespondToAccessTokenRequest(ctx context.Context, req *oauth.Request, ttl time.Duration) (*oauth.Response, error) {
	if _, err := g.ResolveGrantType(req); err != nil {
		return nil, err
	}

	client, err := g.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	old, err := g.validateOldRefreshToken(ctx, req, client)
	if err != nil {
		return nil, err
	}

	granted := storage.ScopeNames(old.Scopes)
	requested := util.SplitScopes(g.opts.ScopeDelimiter, req.BodyParams("scope")...)
	if len(requested) == 0 {
		requested = granted
	}
	if widened := util.Difference(requested, granted); len(widened) > 0 {
		g.auditor.LogScopeEscalation(old.UserID(), client.ID, widened)
		return nil, oauth.ErrInvalidScope("The requested scope exceeds the scope granted by the resource owner")
	}
	scopes, err := g.ValidateScopes(ctx, requested...)
	if err != nil {
		return nil, err
	}

	if err := g.tokens.Revoke(ctx, old); err != nil {
		if errors.Is(err, storage.ErrAlreadyRevoked) {
			return nil, oauth.ErrInvalidGrant("Token has been revoked")
		}
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	token, err := g.IssueAccessToken(ctx, ttl, client, old.User, scopes, old.OriginatingAuthCodeID)
	if err != nil {
		return nil, err
	}
	token, err = g.IssueRefreshToken(ctx, token, client)
	if err != nil {
		return nil, err
	}

	extra, err := g.extraAccessTokenFields(ctx, old.User)
	if err != nil {
		return nil, err
	}

	g.auditor.LogTokenRefreshed(old.UserID(), client.ID)
	return g.MakeBearerTokenResponse(ctx, token, nil, extra)
}

// validateOldRefreshToken decodes the presented refresh token and loads the
// persisted token it belongs to
func (g *RefreshTokenGrant) validateOldRefreshToken(ctx context.Context, req *oauth.Request, client *storage.Client) (*storage.Token, error) {
	raw := req.BodyParam("refresh_token")
	if raw == "" {
		return nil, oauth.ErrInvalidParameter("refresh_token")
	}

	refreshTokenID := raw
	if !g.opts.UseOpaqueRefreshTokens {
		payload, err := g.codec.DecodeRefreshToken(ctx, raw)
		if err != nil {
			return nil, g.artifactError(client.ID, "refresh token", err)
		}
		if payload.RefreshTokenID == "" {
			return nil, oauth.ErrInvalidGrant("Token missing")
		}
		if payload.ClientID != client.ID {
			g.auditor.LogInvalidArtifact(client.ID, string(g.id), "refresh token issued to another client")
			return nil, oauth.ErrInvalidGrant("Token is not linked to client")
		}
		if payload.Expired(g.now()) {
			return nil, oauth.ErrInvalidGrant("Token has expired")
		}
		refreshTokenID = payload.RefreshTokenID
	}

	token, err := g.tokens.GetByRefreshToken(ctx, refreshTokenID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && token == nil) {
		return nil, oauth.ErrInvalidGrant("Token missing")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if token.Client == nil || token.Client.ID != client.ID {
		return nil, oauth.ErrInvalidGrant("Token is not linked to client")
	}
	if !token.RefreshTokenExpiresAt.IsZero() && g.now().After(token.RefreshTokenExpiresAt) {
		return nil, oauth.ErrInvalidGrant("Token has expired")
	}

	revoked, err := g.tokens.IsRefreshTokenRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to check refresh token: %w", err)
	}
	if revoked {
		return nil, oauth.ErrInvalidGrant("Token has been revoked")
	}
	return token, nil
}

// CanRespondToRevokeRequest accepts access and refresh tokens
func (g *RefreshTokenGrant) CanRespondToRevokeRequest(req *oauth.Request) bool {
	return handlesHint(req.BodyParam("token_type_hint"))
}

// CanRespondToIntrospectRequest accepts access and refresh tokens
func (g *RefreshTokenGrant) CanRespondToIntrospectRequest(req *oauth.Request) bool {
	return handlesHint(req.BodyParam("token_type_hint"))
}

func handlesHint(hint string) bool {
	return hint == "" || hint == TokenTypeHintAccessToken || hint == TokenTypeHintRefreshToken
}

// RespondToRevokeRequest revokes the token pair the presented token belongs to
func (g *RefreshTokenGrant) RespondToRevokeRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	return g.HandleRevokeRequest(ctx, req, func(ctx context.Context, client *storage.Client, raw, hint string) error {
		token, kind, err := g.findToken(ctx, raw, hint)
		if err != nil || token == nil {
			return err
		}
		if !belongsTo(token.Client, client) {
			return nil
		}

		err = g.tokens.Revoke(ctx, token)
		if err != nil && !errors.Is(err, storage.ErrAlreadyRevoked) {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		clientID := ""
		if token.Client != nil {
			clientID = token.Client.ID
		}
		g.auditor.LogTokenRevoked(token.UserID(), clientID, kind)
		return nil
	})
}

// RespondToIntrospectRequest describes the presented token (RFC 7662 Section 2.2)
func (g *RefreshTokenGrant) RespondToIntrospectRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	return g.HandleIntrospectRequest(ctx, req, func(ctx context.Context, client *storage.Client, raw, hint string) (*oauth.IntrospectionResponse, error) {
		token, kind, err := g.findToken(ctx, raw, hint)
		if err != nil || token == nil {
			return nil, err
		}
		if !belongsTo(token.Client, client) {
			return nil, nil
		}

		expiresAt := token.AccessTokenExpiresAt
		if kind == TokenTypeHintRefreshToken {
			expiresAt = token.RefreshTokenExpiresAt
			revoked, err := g.tokens.IsRefreshTokenRevoked(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("failed to check refresh token: %w", err)
			}
			if revoked {
				return nil, nil
			}
		}
		now := g.now()
		if !now.Before(expiresAt) {
			return nil, nil
		}

		resp := &oauth.IntrospectionResponse{
			Active:    true,
			Scope:     g.joinScopes(token.Scopes),
			TokenType: oauth.TokenTypeBearer,
			Exp:       expiresAt.Unix(),
			Sub:       token.UserID(),
			Iss:       g.opts.Issuer,
			Jti:       token.AccessToken,
		}
		if kind == TokenTypeHintRefreshToken {
			resp.Jti = token.RefreshToken
		}
		if token.Client != nil {
			resp.ClientID = token.Client.ID
		}
		return resp, nil
	})
}

// findToken resolves a presented token, trying the hinted kind first.
// It returns the kind that matched.
func (g *RefreshTokenGrant) findToken(ctx context.Context, raw, hint string) (*storage.Token, string, error) {
	order := []string{TokenTypeHintRefreshToken, TokenTypeHintAccessToken}
	if hint == TokenTypeHintAccessToken {
		order = []string{TokenTypeHintAccessToken, TokenTypeHintRefreshToken}
	}

	for _, kind := range order {
		var (
			token *storage.Token
			err   error
		)
		if kind == TokenTypeHintRefreshToken {
			token, err = g.findByRefreshToken(ctx, raw)
		} else {
			token, err = g.findByAccessToken(ctx, raw)
		}
		if err != nil {
			return nil, "", err
		}
		if token != nil {
			return token, kind, nil
		}
	}
	return nil, "", nil
}

func (g *RefreshTokenGrant) findByRefreshToken(ctx context.Context, raw string) (*storage.Token, error) {
	id := raw
	if !g.opts.UseOpaqueRefreshTokens {
		payload, err := g.codec.DecodeRefreshToken(ctx, raw)
		if err != nil || payload.RefreshTokenID == "" {
			return nil, nil // not a refresh token
		}
		id = payload.RefreshTokenID
	}
	token, err := g.tokens.GetByRefreshToken(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return token, nil
}

func (g *RefreshTokenGrant) findByAccessToken(ctx context.Context, raw string) (*storage.Token, error) {
	lookup, ok := g.tokens.(storage.AccessTokenLookup)
	if !ok {
		return nil, nil
	}
	m, err := g.codec.ParseAccessToken(ctx, raw)
	if err != nil {
		return nil, nil // not an access token we signed, or expired
	}
	jti := claims.String(m, "jti")
	if jti == "" {
		return nil, nil
	}
	token, err := lookup.GetByAccessToken(ctx, jti)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return token, nil
}
