package grant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/storage"
)

// slowDownIncrement is added to the polling interval on every slow_down (RFC 8628 Section 3.5)
const slowDownIncrement = 5 * time.Second

// DeviceCodeGrant implements the device authorization grant (RFC 8628)
type DeviceCodeGrant struct {
	Base
	deviceCodes storage.DeviceCodeRepository
}

// NewDeviceCodeGrant requires a device code repository and a verification URI
func NewDeviceCodeGrant(deps Dependencies, opts Options) (*DeviceCodeGrant, error) {
	if deps.DeviceCodes == nil {
		return nil, fmt.Errorf("grant %s: device code repository is required", DeviceCode)
	}
	if opts.DeviceVerificationURI == "" {
		return nil, fmt.Errorf("grant %s: verification URI is required", DeviceCode)
	}
	base, err := NewBase(DeviceCode, deps, opts)
	if err != nil {
		return nil, err
	}
	return &DeviceCodeGrant{Base: base, deviceCodes: deps.DeviceCodes}, nil
}

// RespondToDeviceAuthorizationRequest starts a device session (RFC 8628 Section 3.1)
func (g *DeviceCodeGrant) RespondToDeviceAuthorizationRequest(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
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

	code, err := g.deviceCodes.IssueDeviceCode(ctx, client, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to issue device code: %w", err)
	}
	if code.Client == nil {
		code.Client = client
	}
	if code.Scopes == nil {
		code.Scopes = scopes
	}
	code.ExpiresAt = g.now().Add(g.opts.DeviceCodeTTL)
	code.Interval = g.opts.DevicePollInterval
	code.Status = storage.DeviceCodePending

	if err := g.deviceCodes.Persist(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to persist device code: %w", err)
	}

	g.auditor.LogDeviceAuthorizationStarted(client.ID, g.joinScopes(scopes))

	body := &oauth.DeviceAuthorizationResponse{
		DeviceCode:              code.DeviceCode,
		UserCode:                code.UserCode,
		VerificationURI:         g.opts.DeviceVerificationURI,
		VerificationURIComplete: appendQuery(g.opts.DeviceVerificationURI, url.Values{"user_code": {code.UserCode}}),
		ExpiresIn:               int64(math.Ceil(g.opts.DeviceCodeTTL.Seconds())),
		Interval:                int64(code.Interval / time.Second),
	}
	return noStore(oauth.NewResponse(http.StatusOK, body)), nil
}

// Approve records the resource owner's decision for a user code.
// Sessions that are no longer pending cannot be decided again.
func (g *DeviceCodeGrant) Approve(ctx context.Context, userCode string, user *storage.User, approved bool) error {
	code, err := g.deviceCodes.GetByUserCode(ctx, userCode)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && code == nil) {
		return oauth.ErrInvalidGrant("Unknown user code")
	}
	if err != nil {
		return fmt.Errorf("failed to get device code: %w", err)
	}
	if code.Status != storage.DeviceCodePending {
		return oauth.ErrInvalidGrant("The device authorization was already decided")
	}
	if !g.now().Before(code.ExpiresAt) {
		return oauth.ErrExpiredToken("The device code has expired")
	}

	if approved {
		if user == nil {
			return oauth.ErrInvalidRequest("A user is required to approve a device")
		}
		code.Status = storage.DeviceCodeApproved
		code.User = user
	} else {
		code.Status = storage.DeviceCodeDenied
		userID := ""
		if user != nil {
			userID = user.ID
		}
		g.auditor.LogAuthorizationDenied(userID, code.Client.ID, string(g.id))
	}
	g.metrics.RecordAuthorizationCompleted(ctx, string(g.id), approved)

	if err := g.deviceCodes.Persist(ctx, code); err != nil {
		return fmt.Errorf("failed to persist device code: %w", err)
	}
	return nil
}

// RespondToAccessTokenRequest answers a device polling request (RFC 8628 Section 3.4)
func (g *DeviceCodeGrant) RespondToAccessTokenRequest(ctx context.Context, req *oauth.Request, ttl time.Duration) (*oauth.Response, error) {
	if _, err := g.ResolveGrantType(req); err != nil {
		return nil, err
	}

	client, err := g.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	deviceCode := req.BodyParam("device_code")
	if deviceCode == "" {
		return nil, oauth.ErrInvalidParameter("device_code")
	}

	code, err := g.deviceCodes.GetByDeviceCode(ctx, deviceCode)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && code == nil) {
		return nil, oauth.ErrInvalidGrant("Unknown device code")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device code: %w", err)
	}
	if code.Client == nil || code.Client.ID != client.ID {
		g.auditor.LogInvalidArtifact(client.ID, string(g.id), "device code issued to another client")
		return nil, oauth.ErrInvalidGrant("Device code was not issued to this client")
	}

	now := g.now()
	if !now.Before(code.ExpiresAt) {
		return nil, oauth.ErrExpiredToken("The device code has expired")
	}

	switch code.Status {
	case storage.DeviceCodeRedeemed:
		return nil, oauth.ErrInvalidGrant("Device code has already been used")
	case storage.DeviceCodeDenied:
		return nil, oauth.ErrAccessDenied("The resource owner denied the request")
	case storage.DeviceCodeApproved:
		return g.redeem(ctx, client, code, ttl)
	}

	polledTooSoon := !code.LastPolledAt.IsZero() && now.Sub(code.LastPolledAt) < code.Interval
	code.LastPolledAt = now
	if polledTooSoon {
		code.Interval += slowDownIncrement
	}
	if err := g.deviceCodes.Persist(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to persist device code: %w", err)
	}
	if polledTooSoon {
		return nil, oauth.ErrSlowDown(fmt.Sprintf("Poll at most every %d seconds", int64(code.Interval/time.Second)))
	}
	return nil, oauth.ErrAuthorizationPending("The resource owner has not yet decided")
}

func (g *DeviceCodeGrant) redeem(ctx context.Context, client *storage.Client, code *storage.DeviceCode, ttl time.Duration) (*oauth.Response, error) {
	if err := g.deviceCodes.Revoke(ctx, code.DeviceCode); err != nil {
		if errors.Is(err, storage.ErrAlreadyRevoked) {
			return nil, oauth.ErrInvalidGrant("Device code has already been used")
		}
		return nil, fmt.Errorf("failed to revoke device code: %w", err)
	}

	scopes, err := g.FinalizeScopes(ctx, code.Scopes, client, code.User.ID)
	if err != nil {
		return nil, err
	}

	token, err := g.IssueAccessToken(ctx, ttl, client, code.User, scopes, "")
	if err != nil {
		return nil, err
	}
	token, err = g.IssueRefreshToken(ctx, token, client)
	if err != nil {
		return nil, err
	}

	extra, err := g.extraAccessTokenFields(ctx, code.User)
	if err != nil {
		return nil, err
	}
	return g.MakeBearerTokenResponse(ctx, token, nil, extra)
}
