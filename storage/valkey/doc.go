// Package valkey provides a Valkey storage backend for the oauth-core
// authorization server.
//
// Valkey is wire-compatible with Redis. A Store holds clients, tokens,
// authorization codes and device authorization sessions, and is suitable for
// deployments that run several server replicas against shared state.
//
// # Repositories
//
// A Store hands out one view per repository interface:
//
//   - [Store.Clients]: [storage.ClientRepository], plus Register
//   - [Store.Tokens]: [storage.TokenRepository], [storage.DescendantRevoker]
//     and [storage.AccessTokenLookup]
//   - [Store.AuthCodes]: [storage.AuthCodeRepository]
//   - [Store.DeviceCodes]: [storage.DeviceCodeRepository]
//
// Scopes and users are application policy and have no Valkey implementation.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth:"). Secrets that would
// otherwise appear in key names are replaced by their SHA-256 digest:
//
//	{prefix}client:{clientID}                    -> JSON(Client), bcrypt secret hash
//	{prefix}token:{accessToken}                  -> JSON(Token)
//	{prefix}refresh:{sha256(refreshToken)}       -> accessToken
//	{prefix}code:{sha256(code)}                  -> JSON(AuthCode)
//	{prefix}code:tokens:{sha256(code)}           -> SET of accessTokens issued from the code
//	{prefix}device:{sha256(deviceCode)}          -> JSON(DeviceCode)
//	{prefix}usercode:{normalized user code}      -> deviceCode
//	{prefix}revoked:token:{accessToken}          -> "1"
//	{prefix}revoked:code:{sha256(code)}          -> "1"
//	{prefix}revoked:device:{sha256(deviceCode)}  -> "1"
//
// Every record carries a TTL of its expiry plus Config.Retention, so replays
// of expired or consumed artifacts are still recognized for a while.
//
// # Atomic Consumption
//
// Authorization codes, refresh tokens and device codes must be consumed at
// most once. Revocation creates the matching revoked:* key with SET NX; the
// caller that loses the race gets [storage.ErrAlreadyRevoked]. Readers overlay
// the revoked state: revoked tokens come back with expiries in the past, and
// redeemed device sessions come back with status redeemed.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "valkey.example.com:6379",
//	    Password:  os.Getenv("VALKEY_PASSWORD"),
//	    TLS:       &tls.Config{MinVersion: tls.VersionTLS12},
//	    KeyPrefix: "oauth:",
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	deps := grant.Dependencies{
//	    Clients:     store.Clients(),
//	    Tokens:      store.Tokens(),
//	    AuthCodes:   store.AuthCodes(),
//	    DeviceCodes: store.DeviceCodes(),
//	    // Scopes and Users come from the application
//	}
//
// # Token Encryption at Rest
//
// Set Config.Encryptor to seal refresh tokens with AES-256-GCM before they
// are written. The refresh index is keyed by digest, so lookups keep working
// without decrypting every record.
package valkey
