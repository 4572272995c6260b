package grant

import (
	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/storage"
)

// AuthorizationRequest is an authorization request that passed validation and
// is waiting for the application to identify the user and record consent.
type AuthorizationRequest struct {
	GrantTypeID         Identifier
	Client              *storage.Client
	RedirectURI         string
	Scopes              []storage.Scope
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Audience            []string

	// User and Approved are set by the application before completion
	User     *storage.User
	Approved bool
}

// NewAuthorizationRequest creates a request for client. Without an explicit
// redirectURI the client's only registered URI is used; clients with several
// registered URIs must name one.
func NewAuthorizationRequest(id Identifier, client *storage.Client, redirectURI string) (*AuthorizationRequest, error) {
	if redirectURI == "" {
		if len(client.RedirectURIs) != 1 {
			return nil, oauth.ErrInvalidParameter("redirect_uri", "the client has no single registered redirect URI")
		}
		redirectURI = client.RedirectURIs[0]
	}
	return &AuthorizationRequest{
		GrantTypeID: id,
		Client:      client,
		RedirectURI: redirectURI,
		Scopes:      []storage.Scope{},
	}, nil
}

// SetUser records the authenticated resource owner
func (r *AuthorizationRequest) SetUser(user *storage.User) {
	r.User = user
}

// SetApproved records the resource owner's decision
func (r *AuthorizationRequest) SetApproved(approved bool) {
	r.Approved = approved
}
