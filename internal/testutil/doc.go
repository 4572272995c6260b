// Package testutil provides test fixtures for the oauth-core packages: a
// controllable clock, PKCE pairs, request builders and a memory-backed
// Fixture with clients, scopes and a user already registered.
package testutil
