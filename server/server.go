package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/storage"
)

// AuthorizationServer routes token, authorization, revocation, introspection
// and device authorization requests to the first enabled grant that claims
// them. Grants are enabled during setup; the enable methods must not be
// called concurrently with request handling.
type AuthorizationServer struct {
	deps    grant.Dependencies
	options grant.Options
	Config  *Config
	Logger  *slog.Logger

	grants []grant.Grant
	ttls   map[grant.Identifier]time.Duration

	tracer  trace.Tracer
	metrics *instrumentation.Metrics
}

// New creates an authorization server with the client_credentials and
// refresh_token grants enabled
func New(deps grant.Dependencies, config *Config, logger *slog.Logger) (*AuthorizationServer, error) {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	if deps.Logger == nil {
		deps.Logger = logger
	}
	inst := deps.Instrumentation
	if inst == nil {
		inst = instrumentation.Noop()
	}

	srv := &AuthorizationServer{
		deps:    deps,
		options: config.grantOptions(),
		Config:  config,
		Logger:  logger,
		ttls:    make(map[grant.Identifier]time.Duration),
		tracer:  inst.Tracer("server"),
		metrics: inst.Metrics(),
	}

	for _, id := range []grant.Identifier{grant.ClientCredentials, grant.RefreshToken} {
		if err := srv.EnableGrantType(id, 0); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

// EnableGrantType enables one of the built-in grants. A ttl of zero uses
// Config.AccessTokenTTL.
func (s *AuthorizationServer) EnableGrantType(id grant.Identifier, ttl time.Duration) error {
	g, err := s.newGrant(id)
	if err != nil {
		return err
	}
	s.EnableGrant(g, ttl)
	return nil
}

func (s *AuthorizationServer) newGrant(id grant.Identifier) (grant.Grant, error) {
	var (
		g   grant.Grant
		err error
	)
	switch id {
	case grant.AuthorizationCode:
		g, err = grant.NewAuthCodeGrant(s.deps, s.options)
	case grant.ClientCredentials:
		g, err = grant.NewClientCredentialsGrant(s.deps, s.options)
	case grant.RefreshToken:
		g, err = grant.NewRefreshTokenGrant(s.deps, s.options)
	case grant.Password:
		g, err = grant.NewPasswordGrant(s.deps, s.options)
	case grant.Implicit:
		g, err = grant.NewImplicitGrant(s.deps, s.options)
	case grant.TokenExchange:
		g, err = grant.NewTokenExchangeGrant(s.deps, s.options)
	case grant.DeviceCode:
		g, err = grant.NewDeviceCodeGrant(s.deps, s.options)
	default:
		return nil, fmt.Errorf("unknown grant type %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enable grant %s: %w", id, err)
	}
	return g, nil
}

// EnableGrant enables a grant, replacing any enabled grant with the same
// identifier in place. A ttl of zero uses Config.AccessTokenTTL.
func (s *AuthorizationServer) EnableGrant(g grant.Grant, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.Config.AccessTokenTTL
	}
	id := g.Identifier()
	s.ttls[id] = ttl

	for i, enabled := range s.grants {
		if enabled.Identifier() == id {
			s.grants[i] = g
			s.Logger.Debug("Replaced enabled grant", "grant_type", id, "ttl", ttl)
			return
		}
	}
	s.grants = append(s.grants, g)
	s.Logger.Debug("Enabled grant", "grant_type", id, "ttl", ttl)
}

// Grant returns the enabled grant with the given identifier
func (s *AuthorizationServer) Grant(id grant.Identifier) (grant.Grant, bool) {
	for _, g := range s.grants {
		if g.Identifier() == id {
			return g, true
		}
	}
	return nil, false
}

// EnabledGrantTypes lists the enabled grants in dispatch order
func (s *AuthorizationServer) EnabledGrantTypes() []grant.Identifier {
	ids := make([]grant.Identifier, 0, len(s.grants))
	for _, g := range s.grants {
		ids = append(ids, g.Identifier())
	}
	return ids
}

// RespondToAccessTokenRequest handles a token endpoint request
func (s *AuthorizationServer) RespondToAccessTokenRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.token")
	defer span.End()
	started := time.Now()
	defer s.metrics.RecordDuration(ctx, "token", started)

	for _, g := range s.grants {
		if !g.CanRespondToAccessTokenRequest(req) {
			continue
		}
		id := g.Identifier()
		instrumentation.AddGrantAttributes(span, string(id))

		resp, err := g.RespondToAccessTokenRequest(ctx, req, s.ttls[id])
		if err != nil {
			return nil, s.fail(ctx, span, "token", id, err)
		}
		instrumentation.SetSpanSuccess(span)
		return resp, nil
	}

	id := grant.Identifier(req.BodyParam("grant_type"))
	instrumentation.AddGrantAttributes(span, string(id))
	return nil, s.fail(ctx, span, "token", id,
		oauth.ErrUnsupportedGrantType("The authorization grant type is not supported by the authorization server"))
}

// ValidateAuthorizationRequest validates an authorize endpoint request. The
// caller authenticates the user, records approval on the returned request
// and passes it to CompleteAuthorizationRequest.
func (s *AuthorizationServer) ValidateAuthorizationRequest(ctx context.Context, req *oauth.Request) (*grant.AuthorizationRequest, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.authorize.validate")
	defer span.End()
	instrumentation.AddAuthorizationAttributes(span, req.QueryParam("response_type"))

	for _, g := range s.grants {
		if !g.CanRespondToAuthorizationRequest(req) {
			continue
		}
		id := g.Identifier()
		instrumentation.AddGrantAttributes(span, string(id))

		authReq, err := g.ValidateAuthorizationRequest(ctx, req)
		if err != nil {
			return nil, s.fail(ctx, span, "authorize", id, err)
		}
		instrumentation.AddOAuthFlowAttributes(span, authReq.Client.ID, "", "")
		instrumentation.SetSpanSuccess(span)
		return authReq, nil
	}

	return nil, s.fail(ctx, span, "authorize", "",
		oauth.ErrUnsupportedGrantType("The response type is not supported by the authorization server"))
}

// CompleteAuthorizationRequest finishes an authorization request with the
// grant that validated it, independently of the current HTTP request
func (s *AuthorizationServer) CompleteAuthorizationRequest(ctx context.Context, authReq *grant.AuthorizationRequest) (*oauth.Response, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.authorize.complete")
	defer span.End()

	if authReq == nil {
		return nil, s.fail(ctx, span, "authorize", "", oauth.ErrInvalidRequest("Missing authorization request"))
	}
	id := authReq.GrantTypeID
	instrumentation.AddGrantAttributes(span, string(id))

	g, ok := s.Grant(id)
	if !ok {
		return nil, s.fail(ctx, span, "authorize", id,
			oauth.ErrUnsupportedGrantType("The authorization grant type is not supported by the authorization server"))
	}
	if authReq.User != nil {
		instrumentation.AddOAuthFlowAttributes(span, "", authReq.User.ID, "")
	}
	instrumentation.AddApprovalAttributes(span, authReq.Approved)

	resp, err := g.CompleteAuthorizationRequest(ctx, authReq, s.ttls[id])
	if err != nil {
		return nil, s.fail(ctx, span, "authorize", id, err)
	}
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

// Revoke handles a revocation request (RFC 7009)
func (s *AuthorizationServer) Revoke(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.revoke")
	defer span.End()
	instrumentation.AddTokenTypeHintAttributes(span, req.BodyParam("token_type_hint"))

	for _, g := range s.grants {
		if !g.CanRespondToRevokeRequest(req) {
			continue
		}
		id := g.Identifier()
		instrumentation.AddGrantAttributes(span, string(id))

		resp, err := g.RespondToRevokeRequest(ctx, req)
		if err != nil {
			return nil, s.fail(ctx, span, "revoke", id, err)
		}
		instrumentation.SetSpanSuccess(span)
		return resp, nil
	}

	return nil, s.fail(ctx, span, "revoke", "",
		oauth.ErrUnsupportedGrantType("No enabled grant can revoke this token type"))
}

// Introspect handles an introspection request (RFC 7662)
func (s *AuthorizationServer) Introspect(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.introspect")
	defer span.End()
	instrumentation.AddTokenTypeHintAttributes(span, req.BodyParam("token_type_hint"))

	for _, g := range s.grants {
		if !g.CanRespondToIntrospectRequest(req) {
			continue
		}
		id := g.Identifier()
		instrumentation.AddGrantAttributes(span, string(id))

		resp, err := g.RespondToIntrospectRequest(ctx, req)
		if err != nil {
			return nil, s.fail(ctx, span, "introspect", id, err)
		}
		if body, ok := resp.Body.(*oauth.IntrospectionResponse); ok {
			instrumentation.AddIntrospectionAttributes(span, body.Active)
		}
		instrumentation.SetSpanSuccess(span)
		return resp, nil
	}

	return nil, s.fail(ctx, span, "introspect", "",
		oauth.ErrUnsupportedGrantType("No enabled grant can introspect this token type"))
}

// RespondToDeviceAuthorizationRequest starts a device authorization session
// (RFC 8628 Section 3.1). The device code grant must be enabled.
func (s *AuthorizationServer) RespondToDeviceAuthorizationRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.device_authorization")
	defer span.End()
	instrumentation.AddGrantAttributes(span, string(grant.DeviceCode))

	da, err := s.deviceAuthorizer()
	if err != nil {
		return nil, s.fail(ctx, span, "device_authorization", grant.DeviceCode, err)
	}
	resp, err := da.RespondToDeviceAuthorizationRequest(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, span, "device_authorization", grant.DeviceCode, err)
	}
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

// ApproveDevice records the user's decision for a device user code
func (s *AuthorizationServer) ApproveDevice(ctx context.Context, userCode string, user *storage.User, approved bool) error {
	ctx, span := s.tracer.Start(ctx, "oauth.device_approve")
	defer span.End()
	instrumentation.AddGrantAttributes(span, string(grant.DeviceCode))

	da, err := s.deviceAuthorizer()
	if err != nil {
		return s.fail(ctx, span, "device_approve", grant.DeviceCode, err)
	}
	if err := da.Approve(ctx, userCode, user, approved); err != nil {
		return s.fail(ctx, span, "device_approve", grant.DeviceCode, err)
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (s *AuthorizationServer) deviceAuthorizer() (grant.DeviceAuthorizer, error) {
	for _, g := range s.grants {
		if da, ok := g.(grant.DeviceAuthorizer); ok {
			return da, nil
		}
	}
	return nil, oauth.ErrUnsupportedGrantType("The device authorization grant is not enabled")
}

// fail converts err into an *oauth.Error, records it and logs internal causes
func (s *AuthorizationServer) fail(ctx context.Context, span trace.Span, operation string, id grant.Identifier, err error) *oauth.Error {
	oe := oauth.AsError(err)
	instrumentation.RecordError(span, oe)
	instrumentation.AddErrorAttributes(span, operation, oe.Code)
	s.metrics.RecordGrantError(ctx, string(id), oe.Code)

	var typed *oauth.Error
	if !errors.As(err, &typed) || oe.Code == oauth.ErrorCodeServerError {
		s.Logger.Error("OAuth request failed",
			"operation", operation,
			"grant_type", id,
			"error", err)
		return oe
	}

	s.Logger.Debug("OAuth request rejected",
		"operation", operation,
		"grant_type", id,
		"error", oe.Code,
		"description", oe.Description)
	return oe
}
