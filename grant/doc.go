// Package grant implements the OAuth 2.0 grant types.
//
// Every grant implements the Grant interface and embeds Base, which carries
// the shared machinery: client authentication, scope validation, token
// issuance, bearer response assembly, and revocation and introspection
// dispatch. Concrete grants:
//
//   - AuthCodeGrant: authorization_code with PKCE (RFC 6749 4.1, RFC 7636)
//   - ClientCredentialsGrant: client_credentials (RFC 6749 4.4)
//   - RefreshTokenGrant: refresh_token (RFC 6749 6), plus revocation and
//     introspection of access and refresh tokens (RFC 7009, RFC 7662)
//   - PasswordGrant: password (RFC 6749 4.3, legacy)
//   - ImplicitGrant: response_type=token (RFC 6749 4.2, legacy)
//   - TokenExchangeGrant: token exchange (RFC 8693)
//   - DeviceCodeGrant: device authorization (RFC 8628)
//
// Grants are usually constructed by the server package; custom grants can
// embed Base via NewBase and be registered with server.EnableGrant.
//
// Authorization codes and refresh tokens are either self-encoded (signed,
// optionally sealed claim sets) or opaque repository identifiers, chosen by
// Options.UseOpaqueAuthorizationCodes and Options.UseOpaqueRefreshTokens.
// Self-encoded codes are still persisted so that single use can be enforced
// through AuthCodeRepository.IsRevoked.
package grant
