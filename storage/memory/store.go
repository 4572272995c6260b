package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/storage"
)

const (
	// DefaultRefreshTokenTTL is the lifetime of refresh tokens issued by the store
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultCleanupInterval is how often expired records are removed
	DefaultCleanupInterval = time.Minute

	// DefaultRetention is how long expired or revoked records are kept so
	// that replays are still recognized
	DefaultRetention = time.Hour

	storageType = "memory"
)

// FinalizeFunc applies business policy to the scopes of a token about to be issued
type FinalizeFunc func(ctx context.Context, scopes []storage.Scope, grantType string, client *storage.Client, userID string) ([]storage.Scope, error)

// Store is an in-memory implementation of every repository contract.
// A single mutex makes code and refresh token consumption atomic.
type Store struct {
	mu sync.RWMutex

	clients map[string]*storage.Client
	scopes  map[string]storage.Scope
	users   map[string]*userRecord

	// tokens is keyed by access token id, refreshIndex maps refresh token id to it
	tokens        map[string]*storage.Token
	refreshIndex  map[string]string
	revokedTokens map[string]bool

	authCodes     map[string]*storage.AuthCode
	revokedCodes  map[string]bool
	deviceCodes   map[string]*storage.DeviceCode
	userCodeIndex map[string]string

	finalize   FinalizeFunc
	refreshTTL time.Duration
	retention  time.Duration
	now        func() time.Time
	logger     *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// Option configures a Store
type Option func(*Store)

// WithRefreshTokenTTL sets the lifetime of issued refresh tokens
func WithRefreshTokenTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithFinalizer installs the scope finalization policy. The default keeps scopes as requested.
func WithFinalizer(fn FinalizeFunc) Option {
	return func(s *Store) {
		s.finalize = fn
	}
}

// WithCleanupInterval sets how often expired records are removed.
// A negative interval disables the background cleanup.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Store) {
		s.cleanupInterval = interval
	}
}

// WithRetention sets how long expired and revoked records are kept
func WithRetention(retention time.Duration) Option {
	return func(s *Store) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithClock overrides the clock (tests)
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInstrumentation enables storage spans and metrics
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(s *Store) {
		s.instrumentation = inst
		if inst != nil {
			s.tracer = inst.Tracer("storage")
		}
	}
}

// New creates a store and starts its cleanup loop. Call Stop when done.
func New(opts ...Option) *Store {
	s := &Store{
		clients:         make(map[string]*storage.Client),
		scopes:          make(map[string]storage.Scope),
		users:           make(map[string]*userRecord),
		tokens:          make(map[string]*storage.Token),
		refreshIndex:    make(map[string]string),
		revokedTokens:   make(map[string]bool),
		authCodes:       make(map[string]*storage.AuthCode),
		revokedCodes:    make(map[string]bool),
		deviceCodes:     make(map[string]*storage.DeviceCode),
		userCodeIndex:   make(map[string]string),
		refreshTTL:      DefaultRefreshTokenTTL,
		retention:       DefaultRetention,
		now:             time.Now,
		logger:          slog.Default(),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

// Stop stops the cleanup loop. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// Clients returns the client repository view of the store
func (s *Store) Clients() *ClientRepository { return &ClientRepository{s: s} }

// Scopes returns the scope repository view of the store
func (s *Store) Scopes() *ScopeRepository { return &ScopeRepository{s: s} }

// Users returns the user repository view of the store
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Tokens returns the token repository view of the store
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

// AuthCodes returns the authorization code repository view of the store
func (s *Store) AuthCodes() *AuthCodeRepository { return &AuthCodeRepository{s: s} }

// DeviceCodes returns the device code repository view of the store
func (s *Store) DeviceCodes() *DeviceCodeRepository { return &DeviceCodeRepository{s: s} }

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes records that expired more than the retention period ago
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	cleaned := 0

	for id, token := range s.tokens {
		expiry := token.AccessTokenExpiresAt
		if token.RefreshTokenExpiresAt.After(expiry) {
			expiry = token.RefreshTokenExpiresAt
		}
		if expiry.Before(cutoff) {
			delete(s.tokens, id)
			delete(s.revokedTokens, id)
			if token.RefreshToken != "" {
				delete(s.refreshIndex, token.RefreshToken)
			}
			cleaned++
		}
	}

	for id, code := range s.authCodes {
		if code.ExpiresAt.Before(cutoff) {
			delete(s.authCodes, id)
			delete(s.revokedCodes, id)
			cleaned++
		}
	}

	for id, code := range s.deviceCodes {
		if code.ExpiresAt.Before(cutoff) {
			delete(s.deviceCodes, id)
			delete(s.userCodeIndex, util.NormalizeUserCode(code.UserCode))
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired records", "count", cleaned)
	}
}

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(attribute.String("operation", operation)))
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

// observe wraps one repository call in a span and a metric. The returned
// function ends the span.
func (s *Store) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := s.startStorageSpan(ctx, operation)
	return ctx, func(err error) {
		s.recordStorageOperation(ctx, span, operation, err, started)
		if s.tracer != nil {
			span.End()
		}
	}
}

func cloneScopes(scopes []storage.Scope) []storage.Scope {
	if scopes == nil {
		return nil
	}
	return append([]storage.Scope(nil), scopes...)
}

func cloneToken(t *storage.Token) *storage.Token {
	c := *t
	c.Scopes = cloneScopes(t.Scopes)
	return &c
}
