package grant

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/claims"
	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// Base is the machinery shared by every grant. Concrete grants embed it and
// override the methods of Grant they support.
type Base struct {
	id      Identifier
	opts    Options
	clients storage.ClientRepository
	scopes  storage.ScopeRepository
	tokens  storage.TokenRepository
	users   storage.UserRepository
	codec   *claims.Codec
	logger  *slog.Logger
	auditor *security.Auditor
	metrics *instrumentation.Metrics
}

// NewBase validates the common dependencies (clients, scopes, tokens and
// signer) and returns a Base for a grant identified by id.
func NewBase(id Identifier, deps Dependencies, opts Options) (Base, error) {
	switch {
	case deps.Clients == nil:
		return Base{}, fmt.Errorf("grant %s: client repository is required", id)
	case deps.Scopes == nil:
		return Base{}, fmt.Errorf("grant %s: scope repository is required", id)
	case deps.Tokens == nil:
		return Base{}, fmt.Errorf("grant %s: token repository is required", id)
	case deps.Signer == nil:
		return Base{}, fmt.Errorf("grant %s: signer is required", id)
	}

	opts = opts.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *instrumentation.Metrics
	if deps.Instrumentation != nil {
		metrics = deps.Instrumentation.Metrics()
	}

	return Base{
		id:      id,
		opts:    opts,
		clients: deps.Clients,
		scopes:  deps.Scopes,
		tokens:  deps.Tokens,
		users:   deps.Users,
		codec: claims.NewCodec(deps.Signer, claims.Config{
			Issuer:          opts.Issuer,
			TokenCID:        opts.TokenCID,
			NotBeforeLeeway: opts.NotBeforeLeeway,
			ScopeDelimiter:  opts.ScopeDelimiter,
			Encryptor:       deps.Encryptor,
			Now:             opts.Now,
		}),
		logger:  logger.With("grant_type", string(id)),
		auditor: deps.Auditor,
		metrics: metrics,
	}, nil
}

// Identifier implements Grant
func (b *Base) Identifier() Identifier {
	return b.id
}

// Options returns the grant's configuration
func (b *Base) Options() Options {
	return b.opts
}

// Codec returns the claims codec used for self-encoded artifacts
func (b *Base) Codec() *claims.Codec {
	return b.codec
}

func (b *Base) now() time.Time {
	return b.opts.Now()
}

// CanRespondToAccessTokenRequest implements Grant: the body grant_type names this grant
func (b *Base) CanRespondToAccessTokenRequest(req *oauth.Request) bool {
	return req.BodyParam("grant_type") == string(b.id)
}

// RespondToAccessTokenRequest implements Grant for grants without a token endpoint flow
func (b *Base) RespondToAccessTokenRequest(context.Context, *oauth.Request, time.Duration) (*oauth.Response, error) {
	return nil, oauth.ErrUnsupportedGrantType(fmt.Sprintf("The %s grant does not issue tokens at the token endpoint", b.id))
}

// CanRespondToAuthorizationRequest implements Grant
func (b *Base) CanRespondToAuthorizationRequest(*oauth.Request) bool {
	return false
}

// ValidateAuthorizationRequest implements Grant for grants without an authorize flow
func (b *Base) ValidateAuthorizationRequest(context.Context, *oauth.Request) (*AuthorizationRequest, error) {
	return nil, oauth.ErrUnsupportedGrantType(fmt.Sprintf("The %s grant does not support authorization requests", b.id))
}

// CompleteAuthorizationRequest implements Grant for grants without an authorize flow
func (b *Base) CompleteAuthorizationRequest(context.Context, *AuthorizationRequest, time.Duration) (*oauth.Response, error) {
	return nil, oauth.ErrUnsupportedGrantType(fmt.Sprintf("The %s grant does not support authorization requests", b.id))
}

// CanRespondToRevokeRequest implements Grant
func (b *Base) CanRespondToRevokeRequest(*oauth.Request) bool {
	return false
}

// RespondToRevokeRequest implements Grant with a no-op revocation
func (b *Base) RespondToRevokeRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	return b.HandleRevokeRequest(ctx, req, nil)
}

// CanRespondToIntrospectRequest implements Grant
func (b *Base) CanRespondToIntrospectRequest(*oauth.Request) bool {
	return false
}

// RespondToIntrospectRequest implements Grant, reporting every token inactive
func (b *Base) RespondToIntrospectRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	return b.HandleIntrospectRequest(ctx, req, nil)
}

// ResolveGrantType reads grant_type from the body, falling back to the query
// string, and checks that it names this grant.
func (b *Base) ResolveGrantType(req *oauth.Request) (Identifier, error) {
	raw := req.BodyParam("grant_type")
	if raw == "" {
		raw = req.QueryParam("grant_type")
	}
	id := Identifier(raw)
	if raw == "" || (!IsKnown(id) && id != b.id) {
		return "", oauth.ErrInvalidParameter("grant_type")
	}
	if id != b.id {
		return "", oauth.ErrInvalidParameter("grant_type", "grant type does not match the grant handling the request")
	}
	return id, nil
}

// clientCredentials extracts client_id and client_secret. HTTP Basic
// credentials are read first and body parameters override them.
func clientCredentials(req *oauth.Request) (clientID, secret string) {
	clientID, secret = basicAuthCredentials(req.Header("Authorization"))
	if v := req.BodyParam("client_id"); v != "" {
		clientID = v
	}
	if v := req.BodyParam("client_secret"); v != "" {
		secret = v
	}
	return clientID, secret
}

// basicAuthCredentials parses "Basic base64(id:secret)". Both parts are form
// decoded (RFC 6749 Section 2.3.1) when they decode cleanly.
func basicAuthCredentials(header string) (string, string) {
	const prefix = "basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ""
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", ""
	}
	id, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", ""
	}
	if v, err := url.QueryUnescape(id); err == nil {
		id = v
	}
	if v, err := url.QueryUnescape(secret); err == nil {
		secret = v
	}
	return id, secret
}

// lookupClient fetches a client by id, mapping a miss to invalid_client
func (b *Base) lookupClient(ctx context.Context, clientID string) (*storage.Client, error) {
	client, err := b.clients.GetByIdentifier(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && client == nil) {
		b.auditor.LogClientAuthFailure(clientID, string(b.id), "unknown client")
		return nil, oauth.ErrInvalidClient("Client authentication failed")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// AuthenticateClient identifies and authenticates the calling client.
// A confidential client that presents no secret is rejected without asking
// the repository.
func (b *Base) AuthenticateClient(ctx context.Context, req *oauth.Request) (*storage.Client, error) {
	clientID, secret := clientCredentials(req)
	if clientID == "" {
		return nil, oauth.ErrInvalidParameter("client_id")
	}

	client, err := b.lookupClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if client.IsConfidential() && secret == "" {
		b.auditor.LogClientAuthFailure(clientID, string(b.id), "missing client secret")
		return nil, oauth.ErrInvalidClient("Confidential clients require client_secret")
	}

	valid, err := b.clients.IsClientValid(ctx, string(b.id), client, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to validate client: %w", err)
	}
	if !valid {
		b.auditor.LogClientAuthFailure(clientID, string(b.id), "invalid credentials or grant not allowed")
		b.logger.Debug("Client authentication failed", "client_id", clientID)
		return nil, oauth.ErrInvalidClient("Client authentication failed")
	}

	return client, nil
}

// ValidateScopes resolves delimiter-joined (or repeated) scope names and
// fails with invalid_scope naming every unknown one.
func (b *Base) ValidateScopes(ctx context.Context, raw ...string) ([]storage.Scope, error) {
	names := util.SplitScopes(b.opts.ScopeDelimiter, raw...)
	if len(names) == 0 {
		return []storage.Scope{}, nil
	}

	found, err := b.scopes.GetAllByIdentifiers(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to get scopes: %w", err)
	}

	if unknown := util.Difference(names, storage.ScopeNames(found)); len(unknown) > 0 {
		return nil, oauth.ErrInvalidScope("The requested scope is invalid, unknown, or malformed: " + strings.Join(unknown, ", "))
	}
	return found, nil
}

// FinalizeScopes lets the scope repository apply business policy.
// userID is empty for grants without a resource owner.
func (b *Base) FinalizeScopes(ctx context.Context, scopes []storage.Scope, client *storage.Client, userID string) ([]storage.Scope, error) {
	finalized, err := b.scopes.Finalize(ctx, scopes, string(b.id), client, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize scopes: %w", err)
	}
	return finalized, nil
}

// IssueAccessToken mints a token through the repository, sets its expiry from
// ttl, tags it with the authorization code it descends from, checks its
// scopes against the client and persists it exactly once.
func (b *Base) IssueAccessToken(ctx context.Context, ttl time.Duration, client *storage.Client, user *storage.User, scopes []storage.Scope, originatingAuthCodeID string) (*storage.Token, error) {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	token, err := b.tokens.IssueToken(ctx, client, scopes, user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	if token.Scopes == nil {
		token.Scopes = scopes
	}
	if token.Client == nil {
		token.Client = client
	}
	token.AccessTokenExpiresAt = b.now().Add(ttl)
	token.OriginatingAuthCodeID = originatingAuthCodeID

	if err := GuardAgainstClientScopes(token.Scopes, client); err != nil {
		return nil, err
	}

	if err := b.tokens.Persist(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	b.metrics.RecordTokenIssued(ctx, string(b.id))
	b.auditor.LogTokenIssued(token.UserID(), client.ID, string(b.id), b.joinScopes(token.Scopes))

	return token, nil
}

// IssueRefreshToken asks the repository for a refresh token. The repository
// may decline by returning the token unchanged.
func (b *Base) IssueRefreshToken(ctx context.Context, token *storage.Token, client *storage.Client) (*storage.Token, error) {
	refreshed, err := b.tokens.IssueRefreshToken(ctx, token, client)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	if refreshed == nil {
		return token, nil
	}
	return refreshed, nil
}

// extraAccessTokenFields asks the user repository for application claims
func (b *Base) extraAccessTokenFields(ctx context.Context, user *storage.User) (map[string]any, error) {
	if user == nil {
		return nil, nil
	}
	provider, ok := b.users.(storage.ExtraAccessTokenFieldsProvider)
	if !ok {
		return nil, nil
	}
	fields, err := provider.ExtraAccessTokenFields(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to get extra access token fields: %w", err)
	}
	return fields, nil
}

// bearerToken builds the bearer payload: a signed access token and, when the
// token carries one, the encoded refresh token.
func (b *Base) bearerToken(ctx context.Context, token *storage.Token, audience []string, extra map[string]any) (*oauth.BearerTokenResponse, error) {
	accessToken, err := b.codec.SignAccessToken(ctx, token, audience, extra)
	if err != nil {
		return nil, err
	}

	body := &oauth.BearerTokenResponse{
		TokenType:   oauth.TokenTypeBearer,
		ExpiresIn:   b.expiresIn(token.AccessTokenExpiresAt),
		AccessToken: accessToken,
		Scope:       b.joinScopes(token.Scopes),
	}

	if token.RefreshToken != "" {
		if b.opts.UseOpaqueRefreshTokens {
			body.RefreshToken = token.RefreshToken
		} else {
			body.RefreshToken, err = b.codec.EncodeRefreshToken(ctx, claims.NewRefreshToken(token, b.opts.ScopeDelimiter))
			if err != nil {
				return nil, fmt.Errorf("failed to encode refresh token: %w", err)
			}
		}
	}

	return body, nil
}

// MakeBearerTokenResponse renders token as a 200 bearer response with caching disabled
func (b *Base) MakeBearerTokenResponse(ctx context.Context, token *storage.Token, audience []string, extra map[string]any) (*oauth.Response, error) {
	body, err := b.bearerToken(ctx, token, audience, extra)
	if err != nil {
		return nil, err
	}
	return noStore(oauth.NewResponse(http.StatusOK, body)), nil
}

func (b *Base) expiresIn(expiresAt time.Time) int64 {
	seconds := math.Ceil(expiresAt.Sub(b.now()).Seconds())
	if seconds < 0 {
		return 0
	}
	return int64(seconds)
}

func (b *Base) joinScopes(scopes []storage.Scope) string {
	return strings.Join(storage.ScopeNames(scopes), b.opts.ScopeDelimiter)
}

// requestAudience reads audience (or aud) parameters
func requestAudience(values ...[]string) []string {
	var raw []string
	for _, v := range values {
		raw = append(raw, v...)
	}
	return util.SplitScopes(" ", raw...)
}

func noStore(resp *oauth.Response) *oauth.Response {
	resp.Headers.Set("Cache-Control", "no-store")
	resp.Headers.Set("Pragma", "no-cache")
	return resp
}

// artifactError maps a decode failure of a code or refresh token to invalid_grant
func (b *Base) artifactError(clientID, what string, err error) *oauth.Error {
	var desc string
	switch {
	case errors.Is(err, claims.ErrCannotVerify):
		desc = "Cannot verify the " + what
	case errors.Is(err, claims.ErrExpired):
		desc = "The " + what + " has expired"
	default:
		desc = "Cannot decrypt the " + what
	}
	b.auditor.LogInvalidArtifact(clientID, string(b.id), desc)
	b.logger.Debug("Rejected "+what, "client_id", clientID, "error", err)
	return oauth.ErrInvalidGrant(desc).WithCause(err)
}
