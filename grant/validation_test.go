package grant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/storage"
)

func TestRedirectURIMatches(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		allowed   []string
		want      bool
	}{
		{"exact match", "https://app.example.com/cb", []string{"https://app.example.com/cb"}, true},
		{"port ignored on candidate", "http://host/cb", []string{"http://host:9999/cb"}, true},
		{"ephemeral loopback port", "http://127.0.0.1:51234/cb", []string{"http://127.0.0.1/cb"}, true},
		{"path mismatch", "http://host/cb2", []string{"http://host:9999/cb"}, false},
		{"fragment rejected", "http://host/cb#frag", []string{"http://host/cb"}, false},
		{"empty fragment rejected", "http://host/cb#", []string{"http://host/cb"}, false},
		{"scheme mismatch", "http://app.example.com/cb", []string{"https://app.example.com/cb"}, false},
		{"host mismatch", "https://evil.example.com/cb", []string{"https://app.example.com/cb"}, false},
		{"registered query is a prefix", "https://app.example.com/cb?tenant=a&x=1", []string{"https://app.example.com/cb?tenant=a"}, true},
		{"registered query missing", "https://app.example.com/cb?tenant=b", []string{"https://app.example.com/cb?tenant=a"}, false},
		{"second allowed matches", "https://b.example.com/cb", []string{"https://a.example.com/cb", "https://b.example.com/cb"}, true},
		{"nothing registered", "https://app.example.com/cb", nil, false},
		{"unparseable", "://bad", []string{"https://app.example.com/cb"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, grant.RedirectURIMatches(tt.candidate, tt.allowed))
		})
	}
}

func TestGuardAgainstClientScopes(t *testing.T) {
	client := &storage.Client{ID: "c", Scopes: []storage.Scope{{Name: "read"}}}

	assert.NoError(t, grant.GuardAgainstClientScopes([]storage.Scope{{Name: "read"}}, client))
	assert.NoError(t, grant.GuardAgainstClientScopes(nil, client))

	err := grant.GuardAgainstClientScopes([]storage.Scope{{Name: "read"}, {Name: "write"}, {Name: "admin"}}, client)
	oe := requireOAuthError(t, err, oauth.ErrorCodeInvalidScope)
	assert.Contains(t, oe.Description, "write, admin")
}

func TestNewAuthorizationRequest(t *testing.T) {
	single := &storage.Client{ID: "single", RedirectURIs: []string{"https://a.example.com/cb"}}
	multi := &storage.Client{ID: "multi", RedirectURIs: []string{"https://a.example.com/cb", "https://b.example.com/cb"}}

	req, err := grant.NewAuthorizationRequest(grant.AuthorizationCode, single, "")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com/cb", req.RedirectURI)
	assert.Equal(t, grant.AuthorizationCode, req.GrantTypeID)
	assert.False(t, req.Approved)

	req, err = grant.NewAuthorizationRequest(grant.AuthorizationCode, multi, "https://b.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "https://b.example.com/cb", req.RedirectURI)

	_, err = grant.NewAuthorizationRequest(grant.AuthorizationCode, multi, "")
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)

	_, err = grant.NewAuthorizationRequest(grant.AuthorizationCode, &storage.Client{ID: "none"}, "")
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)
}
