package valkey

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth:"

	// DefaultRefreshTokenTTL is the lifetime of refresh tokens issued by the store
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultRetention is how long records outlive their expiry so that
	// replays of expired or revoked artifacts are still recognized
	DefaultRetention = time.Hour

	// tokenIDLogLength is the number of characters to include when logging token IDs
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxIDLength is the maximum accepted length of identifiers used in keys
	MaxIDLength = 512

	storageType = "valkey"
)

// errInputTooLarge is returned for identifiers longer than MaxIDLength
var errInputTooLarge = fmt.Errorf("input exceeds maximum allowed size")

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required by New), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// RefreshTokenTTL is the lifetime of issued refresh tokens (default 30 days)
	RefreshTokenTTL time.Duration

	// Retention is how long records are kept past their expiry (default 1 hour)
	Retention time.Duration

	// Encryptor seals refresh tokens at rest. Optional.
	Encryptor *security.Encryptor

	// Instrumentation enables storage spans and metrics. Optional.
	Instrumentation *instrumentation.Instrumentation

	// Now overrides the clock used for expiry bookkeeping (tests)
	Now func() time.Time
}

// Store is a Valkey-backed implementation of the client, token,
// authorization code and device code repositories. Consumption of codes and
// refresh tokens is made atomic with SET NX on separate revocation keys.
type Store struct {
	client     valkeygo.Client
	prefix     string
	logger     *slog.Logger
	refreshTTL time.Duration
	retention  time.Duration
	encryptor  *security.Encryptor
	now        func() time.Time

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// New connects to Valkey and returns a store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	s := NewFromClient(client, cfg)
	s.logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix)
	return s, nil
}

// NewFromClient wraps an existing client. Address, Password, DB and TLS in
// cfg are ignored.
func NewFromClient(client valkeygo.Client, cfg Config) *Store {
	s := &Store{
		client:          client,
		prefix:          cfg.KeyPrefix,
		logger:          cfg.Logger,
		refreshTTL:      cfg.RefreshTokenTTL,
		retention:       cfg.Retention,
		encryptor:       cfg.Encryptor,
		now:             cfg.Now,
		instrumentation: cfg.Instrumentation,
	}
	if s.prefix == "" {
		s.prefix = DefaultKeyPrefix
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTokenTTL
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.instrumentation != nil {
		s.tracer = s.instrumentation.Tracer("storage/valkey")
	}
	if s.encryptor.IsEnabled() {
		s.logger.Info("Refresh token encryption at rest enabled for Valkey storage")
	}
	return s
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// Clients returns the client repository view of the store
func (s *Store) Clients() *ClientRepository { return &ClientRepository{s: s} }

// Tokens returns the token repository view of the store
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

// AuthCodes returns the authorization code repository view of the store
func (s *Store) AuthCodes() *AuthCodeRepository { return &AuthCodeRepository{s: s} }

// DeviceCodes returns the device code repository view of the store
func (s *Store) DeviceCodes() *DeviceCodeRepository { return &DeviceCodeRepository{s: s} }

// ============================================================
// Key helpers
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) tokenKey(accessToken string) string {
	return s.prefix + "token:" + accessToken
}

// refreshKey is keyed by a digest so raw refresh tokens never appear in key names
func (s *Store) refreshKey(refreshToken string) string {
	return s.prefix + "refresh:" + digest(refreshToken)
}

func (s *Store) revokedTokenKey(accessToken string) string {
	return s.prefix + "revoked:token:" + accessToken
}

func (s *Store) codeTokensKey(authCodeID string) string {
	return s.prefix + "code:tokens:" + digest(authCodeID)
}

func (s *Store) codeKey(code string) string {
	return s.prefix + "code:" + digest(code)
}

func (s *Store) revokedCodeKey(code string) string {
	return s.prefix + "revoked:code:" + digest(code)
}

func (s *Store) deviceKey(deviceCode string) string {
	return s.prefix + "device:" + digest(deviceCode)
}

func (s *Store) redeemedDeviceKey(deviceCode string) string {
	return s.prefix + "revoked:device:" + digest(deviceCode)
}

func (s *Store) userCodeKey(normalizedUserCode string) string {
	return s.prefix + "usercode:" + normalizedUserCode
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// ============================================================
// Helper methods
// ============================================================

// recordTTL is how long a record expiring at expiresAt is kept: until its
// expiry plus the retention period, and never less than the retention period
func (s *Store) recordTTL(expiresAt ...time.Time) time.Duration {
	var latest time.Time
	for _, t := range expiresAt {
		if t.After(latest) {
			latest = t
		}
	}
	ttl := latest.Sub(s.now()) + s.retention
	if ttl < s.retention {
		return s.retention
	}
	return ttl
}

// observe wraps one repository call in a span and a metric. The returned
// function ends the span.
func (s *Store) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	if s.tracer == nil {
		return ctx, func(error) {}
	}

	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)

	return ctx, func(err error) {
		result := "success"
		if err != nil {
			result = "error"
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		durationMs := float64(time.Since(started).Microseconds()) / 1000
		s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
		span.End()
	}
}

func validateLength(value, fieldName string) error {
	if len(value) > MaxIDLength {
		return fmt.Errorf("%s: %w", fieldName, errInputTooLarge)
	}
	return nil
}

// setOnce creates key with SET NX and gives it ttl. It returns
// storage.ErrAlreadyRevoked when the key already existed, so exactly one of
// several concurrent callers succeeds.
func (s *Store) setOnce(ctx context.Context, key string, ttl time.Duration, what string) error {
	results := s.client.DoMulti(ctx,
		s.client.B().Set().Key(key).Value("1").Nx().Build(),
		s.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build(),
	)
	err := results[0].Error()
	if isNilError(err) {
		return storage.ErrAlreadyRevoked
	}
	if err != nil {
		return fmt.Errorf("failed to revoke %s: %w", what, err)
	}
	if err := results[1].Error(); err != nil {
		s.logger.Warn("Failed to set TTL on revocation key", "error", err)
	}
	return nil
}

// isNilError reports whether err is the Valkey nil reply (missing key, or a
// SET NX that did not set)
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
