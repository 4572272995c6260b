// Package memory provides an in-memory implementation of every repository
// contract in package storage.
//
// A single Store holds all state behind one mutex and hands out typed
// repository views, so consumption of authorization codes, refresh tokens
// and device codes is atomic. It is suitable for development, testing, and
// single-instance deployments.
//
// Features:
//   - Client secrets and user passwords stored as bcrypt hashes
//   - Random identifiers from google/uuid and oauth2.GenerateVerifier
//   - Cascade revocation of tokens issued from a replayed authorization code
//   - Background cleanup of expired records after a retention period
//   - Optional OpenTelemetry spans and metrics per repository call
//
// For multi-instance deployments use the storage/valkey package for tokens
// and authorization codes.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	deps := grant.Dependencies{
//		Clients:   store.Clients(),
//		Scopes:    store.Scopes(),
//		Tokens:    store.Tokens(),
//		AuthCodes: store.AuthCodes(),
//		Users:     store.Users(),
//		Signer:    signer,
//	}
package memory
