// Package signer provides claims.Signer implementations.
//
// JWT signs with github.com/golang-jwt/jwt/v5 (HS256 with a shared secret or
// RS256 with an RSA key pair). JOSE signs with github.com/go-jose/go-jose/v4
// and accepts any algorithm go-jose supports (RS*, PS*, ES*, EdDSA, HS*).
//
// Both map library errors onto the claims sentinels so the grants can tell a
// forged token (claims.ErrCannotVerify) from a garbled one
// (claims.ErrCannotDecrypt).
package signer
