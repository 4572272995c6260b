package grant

import (
	"context"
	"errors"
	"net/http"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/storage"
)

// RevokeFunc revokes the presented token on behalf of client. client is nil
// when the endpoint does not authenticate callers.
type RevokeFunc func(ctx context.Context, client *storage.Client, token, hint string) error

// IntrospectFunc describes the presented token. A nil response reports it inactive.
type IntrospectFunc func(ctx context.Context, client *storage.Client, token, hint string) (*oauth.IntrospectionResponse, error)

// endpointClient authenticates the caller of the revocation or introspection
// endpoint when required, and otherwise identifies it on a best-effort basis.
func (b *Base) endpointClient(ctx context.Context, req *oauth.Request, authenticate bool) (*storage.Client, error) {
	if authenticate {
		return b.AuthenticateClient(ctx, req)
	}
	clientID, _ := clientCredentials(req)
	if clientID == "" {
		return nil, nil
	}
	client, err := b.clients.GetByIdentifier(ctx, clientID)
	if err != nil || client == nil {
		return nil, nil // unknown callers are anonymous
	}
	return client, nil
}

// HandleRevokeRequest runs the shared RFC 7009 steps and calls revoke.
// A token the grant does not know is not an error.
func (b *Base) HandleRevokeRequest(ctx context.Context, req *oauth.Request, revoke RevokeFunc) (*oauth.Response, error) {
	client, err := b.endpointClient(ctx, req, b.opts.AuthenticateRevoke)
	if err != nil {
		return nil, err
	}

	token := req.BodyParam("token")
	if token == "" {
		return nil, oauth.ErrInvalidParameter("token")
	}
	hint := req.BodyParam("token_type_hint")

	if revoke != nil {
		if err := revoke(ctx, client, token, hint); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	b.metrics.RecordTokenRevoked(ctx, hint)
	resp := oauth.NewResponse(http.StatusOK, nil)
	return noStore(resp), nil
}

// HandleIntrospectRequest runs the shared RFC 7662 steps and calls introspect
func (b *Base) HandleIntrospectRequest(ctx context.Context, req *oauth.Request, introspect IntrospectFunc) (*oauth.Response, error) {
	client, err := b.endpointClient(ctx, req, b.opts.AuthenticateIntrospect)
	if err != nil {
		return nil, err
	}

	token := req.BodyParam("token")
	if token == "" {
		return nil, oauth.ErrInvalidParameter("token")
	}
	hint := req.BodyParam("token_type_hint")

	var body *oauth.IntrospectionResponse
	if introspect != nil {
		body, err = introspect(ctx, client, token, hint)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	if body == nil {
		body = &oauth.IntrospectionResponse{Active: false}
	}

	b.metrics.RecordTokenIntrospected(ctx, body.Active)
	return noStore(oauth.NewResponse(http.StatusOK, body)), nil
}

// belongsTo reports whether a record issued to owner may be revoked or
// introspected by caller. Anonymous callers are only allowed when the
// endpoint does not authenticate.
func belongsTo(owner, caller *storage.Client) bool {
	if caller == nil {
		return true
	}
	return owner != nil && owner.ID == caller.ID
}
