package grant

import (
	"context"
	"log/slog"

	"github.com/giantswarm/oauth-core/claims"
	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// Dependencies are the collaborators a grant may use. Each constructor
// documents which ones it requires.
type Dependencies struct {
	Clients     storage.ClientRepository
	Scopes      storage.ScopeRepository
	Tokens      storage.TokenRepository
	AuthCodes   storage.AuthCodeRepository
	Users       storage.UserRepository
	DeviceCodes storage.DeviceCodeRepository

	// Signer signs access tokens and self-encoded codes and refresh tokens
	Signer claims.Signer

	// Encryptor seals self-encoded codes and refresh tokens. Optional.
	Encryptor *security.Encryptor

	// TokenExchange resolves the subject of a token exchange request
	TokenExchange TokenExchangeFunc

	// Logger defaults to slog.Default()
	Logger *slog.Logger

	// Auditor receives security events. Optional.
	Auditor *security.Auditor

	// Instrumentation records grant metrics. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// TokenExchangeRequest is what a TokenExchangeFunc gets to decide on
type TokenExchangeRequest struct {
	Client             *storage.Client
	SubjectToken       string
	SubjectTokenType   string
	ActorToken         string
	ActorTokenType     string
	RequestedTokenType string
	Resource           []string
	Audience           []string
	Scopes             []storage.Scope
}

// TokenExchangeFunc validates the subject (and actor) tokens of an RFC 8693
// request and returns the user the new token is issued for. A nil user issues
// a user-less token. Returning an *oauth.Error sends it to the client as is.
type TokenExchangeFunc func(ctx context.Context, req *TokenExchangeRequest) (*storage.User, error)
