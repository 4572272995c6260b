package grant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/claims"
	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/pkce"
	"github.com/giantswarm/oauth-core/storage"
)

// AuthCodeGrant implements the authorization code grant (RFC 6749 Section 4.1)
// with PKCE (RFC 7636).
type AuthCodeGrant struct {
	Base
	authCodes storage.AuthCodeRepository
}

// NewAuthCodeGrant requires an auth code repository in addition to the
// common dependencies. The user repository is optional: without one, the
// user recorded in the code is trusted as is.
func NewAuthCodeGrant(deps Dependencies, opts Options) (*AuthCodeGrant, error) {
	if deps.AuthCodes == nil {
		return nil, fmt.Errorf("grant %s: auth code repository is required", AuthorizationCode)
	}
	base, err := NewBase(AuthorizationCode, deps, opts)
	if err != nil {
		return nil, err
	}
	return &AuthCodeGrant{Base: base, authCodes: deps.AuthCodes}, nil
}

// CanRespondToAuthorizationRequest matches response_type=code
func (g *AuthCodeGrant) CanRespondToAuthorizationRequest(req *oauth.Request) bool {
	return req.QueryParam("response_type") == "code"
}

// ValidateAuthorizationRequest checks client, redirect URI, scopes and the
// PKCE challenge of an authorize request.
func (g *AuthCodeGrant) ValidateAuthorizationRequest(ctx context.Context, req *oauth.Request) (*AuthorizationRequest, error) {
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
	authReq.Scopes = scopes
	authReq.State = req.QueryParam("state")
	authReq.Audience = requestAudience(req.QueryParams("audience"), req.QueryParams("aud"))

	challenge := req.QueryParam("code_challenge")
	if challenge == "" {
		if g.opts.RequiresPKCE {
			return nil, oauth.ErrInvalidParameter("code_challenge", "code challenge is required")
		}
		return authReq, nil
	}

	method := req.QueryParam("code_challenge_method")
	verifier, err := pkce.ForMethod(method)
	if err != nil {
		return nil, oauth.ErrInvalidParameter("code_challenge_method", "must be plain or S256")
	}
	if g.opts.RequiresS256 && verifier.Method() != pkce.MethodS256 {
		return nil, oauth.ErrInvalidParameter("code_challenge_method", "S256 is required")
	}
	// Both methods produce challenges in the verifier alphabet
	if err := pkce.ValidateVerifier(challenge); err != nil {
		return nil, oauth.ErrInvalidParameter("code_challenge", err.Error())
	}

	authReq.CodeChallenge = challenge
	authReq.CodeChallengeMethod = verifier.Method()
	return authReq, nil
}

// validateClientRedirect resolves the client and redirect URI shared by the
// code and implicit grants
func (b *Base) validateClientRedirect(ctx context.Context, req *oauth.Request) (*AuthorizationRequest, error) {
	clientID := req.QueryParam("client_id")
	if clientID == "" {
		return nil, oauth.ErrInvalidParameter("client_id")
	}

	client, err := b.lookupClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(client.AllowedGrants) > 0 && !client.AllowsGrant(string(b.id)) {
		b.auditor.LogClientAuthFailure(clientID, string(b.id), "grant not allowed for client")
		return nil, oauth.ErrInvalidClient("The client is not allowed to use this grant")
	}

	redirectURI := req.QueryParam("redirect_uri")
	if redirectURI != "" && !RedirectURIMatches(redirectURI, client.RedirectURIs) {
		b.auditor.LogClientAuthFailure(clientID, string(b.id), "redirect_uri mismatch")
		return nil, oauth.ErrInvalidClient("Invalid redirect_uri")
	}

	return NewAuthorizationRequest(b.id, client, redirectURI)
}

// CompleteAuthorizationRequest issues the code and redirects back to the client
func (g *AuthCodeGrant) CompleteAuthorizationRequest(ctx context.Context, authReq *AuthorizationRequest, _ time.Duration) (*oauth.Response, error) {
	if authReq.User == nil {
		return nil, oauth.ErrInvalidRequest("A user must be set on the authorization request")
	}
	if !authReq.Approved {
		g.auditor.LogAuthorizationDenied(authReq.User.ID, authReq.Client.ID, string(g.id))
		g.metrics.RecordAuthorizationCompleted(ctx, string(g.id), false)
		return nil, oauth.ErrAccessDenied("The resource owner denied the request")
	}

	code, err := g.authCodes.IssueAuthCode(ctx, authReq.Client, authReq.User, authReq.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to issue authorization code: %w", err)
	}
	code.ExpiresAt = g.now().Add(g.opts.AuthorizationCodeTTL)
	code.RedirectURI = authReq.RedirectURI
	code.CodeChallenge = authReq.CodeChallenge
	code.CodeChallengeMethod = authReq.CodeChallengeMethod
	code.Audience = authReq.Audience
	if code.Client == nil {
		code.Client = authReq.Client
	}
	if code.User == nil {
		code.User = authReq.User
	}
	if code.Scopes == nil {
		code.Scopes = authReq.Scopes
	}

	if err := g.authCodes.Persist(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to persist authorization code: %w", err)
	}

	encoded := code.Code
	if !g.opts.UseOpaqueAuthorizationCodes {
		encoded, err = g.codec.EncodeAuthCode(ctx, claims.NewAuthCode(code))
		if err != nil {
			return nil, fmt.Errorf("failed to encode authorization code: %w", err)
		}
	}

	g.metrics.RecordAuthorizationCompleted(ctx, string(g.id), true)
	g.auditor.LogAuthorizationCodeIssued(authReq.User.ID, authReq.Client.ID, g.joinScopes(code.Scopes))

	params := url.Values{"code": {encoded}}
	if authReq.State != "" {
		params.Set("state", authReq.State)
	}
	return oauth.NewRedirectResponse(appendQuery(authReq.RedirectURI, params)), nil
}

// RespondToAccessTokenRequest exchanges an authorization code for tokens
func (g *AuthCodeGrant) RespondToAccessTokenRequest(ctx context.Context, req *oauth.Request, ttl time.Duration) (*oauth.Response, error) {
	if _, err := g.ResolveGrantType(req); err != nil {
		return nil, err
	}

	client, err := g.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	raw := req.BodyParam("code")
	if raw == "" {
		return nil, oauth.ErrInvalidParameter("code")
	}

	payload, err := g.loadCode(ctx, client, raw)
	if err != nil {
		return nil, err
	}
	if payload.AuthCodeID == "" {
		return nil, oauth.ErrInvalidGrant("Authorization code malformed")
	}

	revoked, err := g.authCodes.IsRevoked(ctx, payload.AuthCodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to check authorization code: %w", err)
	}
	if revoked {
		return nil, g.codeReused(ctx, client, payload.AuthCodeID)
	}

	if payload.Expired(g.now()) {
		return nil, oauth.ErrInvalidGrant("Authorization code has expired")
	}
	if payload.ClientID != client.ID {
		g.auditor.LogInvalidArtifact(client.ID, string(g.id), "authorization code issued to another client")
		return nil, oauth.ErrInvalidGrant("Authorization code was not issued to this client")
	}

	redirectURI := req.BodyParam("redirect_uri")
	if redirectURI == "" {
		return nil, oauth.ErrInvalidParameter("redirect_uri")
	}
	if payload.RedirectURI == "" || payload.RedirectURI != redirectURI {
		return nil, oauth.ErrInvalidGrant("Invalid redirect_uri")
	}

	if err := g.verifyPKCE(ctx, client, payload, req.BodyParam("code_verifier")); err != nil {
		return nil, err
	}

	user, err := g.resolveUser(ctx, client, payload.UserID)
	if err != nil {
		return nil, err
	}

	scopes, err := g.scopes.GetAllByIdentifiers(ctx, payload.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to get scopes: %w", err)
	}
	scopes, err = g.FinalizeScopes(ctx, scopes, client, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := g.IssueAccessToken(ctx, ttl, client, user, scopes, payload.AuthCodeID)
	if err != nil {
		return nil, err
	}
	token, err = g.IssueRefreshToken(ctx, token, client)
	if err != nil {
		return nil, err
	}

	if err := g.authCodes.Revoke(ctx, payload.AuthCodeID); err != nil {
		if errors.Is(err, storage.ErrAlreadyRevoked) {
			// Lost a race with a concurrent redemption
			return nil, g.codeReused(ctx, client, payload.AuthCodeID)
		}
		return nil, fmt.Errorf("failed to revoke authorization code: %w", err)
	}

	extra, err := g.extraAccessTokenFields(ctx, user)
	if err != nil {
		return nil, err
	}
	return g.MakeBearerTokenResponse(ctx, token, payload.Audience, extra)
}

// loadCode turns the presented code into its payload, either by decoding the
// self-encoded form or by looking up the opaque identifier
func (g *AuthCodeGrant) loadCode(ctx context.Context, client *storage.Client, raw string) (*claims.AuthCode, error) {
	if !g.opts.UseOpaqueAuthorizationCodes {
		payload, err := g.codec.DecodeAuthCode(ctx, raw)
		if err != nil {
			return nil, g.artifactError(client.ID, "authorization code", err)
		}
		return payload, nil
	}

	code, err := g.authCodes.GetByIdentifier(ctx, raw)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && code == nil) {
		g.auditor.LogInvalidArtifact(client.ID, string(g.id), "unknown authorization code")
		return nil, oauth.ErrInvalidGrant("Authorization code not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return claims.NewAuthCode(code), nil
}

// codeReused revokes every token issued from a replayed code (RFC 6749 Section 4.1.2)
func (g *AuthCodeGrant) codeReused(ctx context.Context, client *storage.Client, codeID string) error {
	g.auditor.LogCodeReuse(client.ID, codeID)
	g.metrics.RecordCodeReuse(ctx)
	instrumentation.AddCodeReuseAttributes(trace.SpanFromContext(ctx))
	g.logger.Warn("Authorization code reuse detected, revoking issued tokens", "client_id", client.ID)

	if revoker, ok := g.tokens.(storage.DescendantRevoker); ok {
		if err := revoker.RevokeDescendantsOf(ctx, codeID); err != nil {
			g.logger.Error("Failed to revoke tokens issued from reused code", "client_id", client.ID, "error", err)
		}
	}
	return oauth.ErrInvalidGrant("Authorization code has been revoked")
}

func (g *AuthCodeGrant) verifyPKCE(ctx context.Context, client *storage.Client, payload *claims.AuthCode, codeVerifier string) error {
	if payload.CodeChallenge == "" {
		if codeVerifier != "" {
			return oauth.ErrInvalidRequest("Failed to verify code_verifier: no code_challenge was presented at authorization")
		}
		return nil
	}

	if codeVerifier == "" {
		return oauth.ErrInvalidParameter("code_verifier")
	}
	if err := pkce.ValidateVerifier(codeVerifier); err != nil {
		return oauth.ErrInvalidParameter("code_verifier", err.Error())
	}

	verifier, err := pkce.ForMethod(payload.CodeChallengeMethod)
	if err != nil {
		return oauth.ErrInvalidGrant("Unsupported code_challenge_method").WithCause(err)
	}
	instrumentation.AddPKCEAttributes(trace.SpanFromContext(ctx), verifier.Method())
	if !verifier.Verify(codeVerifier, payload.CodeChallenge) {
		g.auditor.LogPKCEFailure(client.ID, verifier.Method())
		g.metrics.RecordPKCEFailure(ctx, verifier.Method())
		return oauth.ErrInvalidGrant("Failed to verify code_verifier")
	}
	return nil
}

// resolveUser reloads the resource owner named by a code
func (g *AuthCodeGrant) resolveUser(ctx context.Context, client *storage.Client, userID string) (*storage.User, error) {
	if userID == "" {
		return nil, oauth.ErrInvalidGrant("Authorization code has no resource owner")
	}
	if g.users == nil {
		return &storage.User{ID: userID}, nil
	}
	user, err := g.users.GetUserByCredentials(ctx, userID, "", string(g.id), client)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, oauth.ErrInvalidGrant("The resource owner no longer exists")
	}
	return user, nil
}

// CanRespondToRevokeRequest matches token_type_hint=auth_code
func (g *AuthCodeGrant) CanRespondToRevokeRequest(req *oauth.Request) bool {
	return req.BodyParam("token_type_hint") == TokenTypeHintAuthCode
}

// RespondToRevokeRequest revokes an unused authorization code
func (g *AuthCodeGrant) RespondToRevokeRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	return g.HandleRevokeRequest(ctx, req, func(ctx context.Context, client *storage.Client, raw, _ string) error {
		id := raw
		if !g.opts.UseOpaqueAuthorizationCodes {
			payload, err := g.codec.DecodeAuthCode(ctx, raw)
			if err != nil {
				return nil // undecodable codes are unknown codes
			}
			if client != nil && payload.ClientID != client.ID {
				return nil
			}
			id = payload.AuthCodeID
		} else if client != nil {
			code, err := g.authCodes.GetByIdentifier(ctx, raw)
			if err != nil {
				return err
			}
			if code == nil {
				return nil
			}
			if !belongsTo(code.Client, client) {
				return nil
			}
		}

		err := g.authCodes.Revoke(ctx, id)
		if errors.Is(err, storage.ErrAlreadyRevoked) {
			return nil
		}
		return err
	})
}
