package grant

import (
	"net/url"
	"strings"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/storage"
)

// GuardAgainstClientScopes fails with invalid_scope when any scope is not in
// the client's allowed set
func GuardAgainstClientScopes(scopes []storage.Scope, client *storage.Client) error {
	var unauthorized []string
	for _, s := range scopes {
		if !client.HasScope(s.Name) {
			unauthorized = append(unauthorized, s.Name)
		}
	}
	if len(unauthorized) > 0 {
		return oauth.ErrInvalidScope("Unauthorized scope requested by the client: " + strings.Join(unauthorized, ", "))
	}
	return nil
}

// RedirectURIMatches reports whether candidate is acceptable for one of the
// registered URIs. Scheme, host and path must be equal; the port is ignored
// so native apps can listen on an ephemeral loopback port (RFC 8252
// Section 7.3). A registered query string must prefix the candidate's.
// Fragments are never allowed (RFC 6749 Section 3.1.2).
func RedirectURIMatches(candidate string, allowed []string) bool {
	c, err := url.Parse(candidate)
	if err != nil || c.Fragment != "" || strings.Contains(candidate, "#") {
		return false
	}
	for _, a := range allowed {
		r, err := url.Parse(a)
		if err != nil {
			continue
		}
		if !strings.EqualFold(c.Scheme, r.Scheme) || !strings.EqualFold(c.Hostname(), r.Hostname()) || c.Path != r.Path {
			continue
		}
		if r.RawQuery != "" && !strings.HasPrefix(c.RawQuery, r.RawQuery) {
			continue
		}
		return true
	}
	return false
}

// appendQuery adds params to a redirect URI, keeping any registered query
func appendQuery(redirectURI string, params url.Values) string {
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	return redirectURI + sep + params.Encode()
}
