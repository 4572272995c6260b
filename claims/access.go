package claims

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/giantswarm/oauth-core/storage"
)

// AccessTokenClaims builds the claim set of a self-encoded access token.
//
// Extension fields are applied first: the signer's (when it implements
// ExtraFieldsProvider) and then extra. cid, scope, sub, exp, nbf, iat and
// jti always come from token. iss and aud come from configuration and the
// request audience and fall back to the extension values.
func (c *Codec) AccessTokenClaims(ctx context.Context, token *storage.Token, audience []string, extra map[string]any) (map[string]any, error) {
	m := make(map[string]any)

	if p, ok := c.signer.(ExtraFieldsProvider); ok {
		fields, err := p.ExtraTokenFields(ctx, token, token.Client)
		if err != nil {
			return nil, fmt.Errorf("failed to get signer extra token fields: %w", err)
		}
		maps.Copy(m, fields)
	}
	maps.Copy(m, extra)

	if c.cfg.Issuer != "" {
		m["iss"] = c.cfg.Issuer
	}
	if len(audience) > 0 {
		m["aud"] = audienceValue(audience)
	}

	now := c.now()
	m["cid"] = c.clientIdentifier(token.Client)
	m["scope"] = strings.Join(storage.ScopeNames(token.Scopes), c.cfg.ScopeDelimiter)
	if uid := token.UserID(); uid != "" {
		m["sub"] = uid
	} else {
		delete(m, "sub")
	}
	m["exp"] = token.AccessTokenExpiresAt.Unix()
	m["nbf"] = now.Add(-c.cfg.NotBeforeLeeway).Unix()
	m["iat"] = now.Unix()
	m["jti"] = token.AccessToken

	return m, nil
}

func (c *Codec) clientIdentifier(client *storage.Client) string {
	if client == nil {
		return ""
	}
	if c.cfg.TokenCID == CIDClientName {
		return client.Name
	}
	return client.ID
}
