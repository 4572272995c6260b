// Package storage defines the data model and the repository contracts the
// grant core consumes:
//   - ClientRepository: looks up and authenticates OAuth clients
//   - ScopeRepository: resolves scope names and finalizes granted scopes
//   - TokenRepository: mints, persists and revokes access/refresh tokens
//   - AuthCodeRepository: issues and consumes authorization codes
//   - UserRepository: resolves resource owners
//   - DeviceCodeRepository: tracks device authorization sessions
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/valkey: Valkey/Redis-compatible client, token and code storage for production
//   - storage/mock: Function-field wrappers for injecting failures in tests
package storage
