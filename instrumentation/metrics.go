package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for grant outcomes.
// All Record methods are nil-safe.
type Metrics struct {
	TokensIssued            metric.Int64Counter
	AuthorizationsCompleted metric.Int64Counter
	TokensRevoked           metric.Int64Counter
	TokensIntrospected      metric.Int64Counter
	GrantErrors             metric.Int64Counter
	CodeReuseDetected       metric.Int64Counter
	PKCEValidationFailed    metric.Int64Counter
	RequestDuration         metric.Float64Histogram
	StorageOperations       metric.Int64Counter
	StorageDuration         metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.TokensIssued, err = meter.Int64Counter(
		"oauth.token.issued",
		metric.WithDescription("Number of access tokens issued"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token.issued counter: %w", err)
	}

	if m.AuthorizationsCompleted, err = meter.Int64Counter(
		"oauth.authorization.completed",
		metric.WithDescription("Number of authorization requests completed"),
		metric.WithUnit("{authorization}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create authorization.completed counter: %w", err)
	}

	if m.TokensRevoked, err = meter.Int64Counter(
		"oauth.token.revoked",
		metric.WithDescription("Number of revocation requests served"),
		metric.WithUnit("{revocation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token.revoked counter: %w", err)
	}

	if m.TokensIntrospected, err = meter.Int64Counter(
		"oauth.token.introspected",
		metric.WithDescription("Number of introspection requests served"),
		metric.WithUnit("{introspection}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token.introspected counter: %w", err)
	}

	if m.GrantErrors, err = meter.Int64Counter(
		"oauth.grant.errors",
		metric.WithDescription("Number of requests rejected with an OAuth error"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create grant.errors counter: %w", err)
	}

	if m.CodeReuseDetected, err = meter.Int64Counter(
		"oauth.code.reuse_detected",
		metric.WithDescription("Number of replayed authorization codes"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create code.reuse_detected counter: %w", err)
	}

	if m.PKCEValidationFailed, err = meter.Int64Counter(
		"oauth.pkce.validation_failed",
		metric.WithDescription("Number of code_verifier mismatches"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create pkce.validation_failed counter: %w", err)
	}

	if m.RequestDuration, err = meter.Float64Histogram(
		"oauth.request.duration",
		metric.WithDescription("Entry point latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request.duration histogram: %w", err)
	}

	if m.StorageOperations, err = meter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Number of repository operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	if m.StorageDuration, err = meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Repository operation latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}

// RecordTokenIssued counts an issued access token
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType string) {
	if m == nil || m.TokensIssued == nil {
		return
	}
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("grant_type", grantType)))
}

// RecordAuthorizationCompleted counts a completed authorization request
func (m *Metrics) RecordAuthorizationCompleted(ctx context.Context, grantType string, approved bool) {
	if m == nil || m.AuthorizationsCompleted == nil {
		return
	}
	m.AuthorizationsCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.Bool("approved", approved),
	))
}

// RecordTokenRevoked counts a revocation request
func (m *Metrics) RecordTokenRevoked(ctx context.Context, tokenTypeHint string) {
	if m == nil || m.TokensRevoked == nil {
		return
	}
	m.TokensRevoked.Add(ctx, 1, metric.WithAttributes(attribute.String("token_type_hint", tokenTypeHint)))
}

// RecordTokenIntrospected counts an introspection request
func (m *Metrics) RecordTokenIntrospected(ctx context.Context, active bool) {
	if m == nil || m.TokensIntrospected == nil {
		return
	}
	m.TokensIntrospected.Add(ctx, 1, metric.WithAttributes(attribute.Bool("active", active)))
}

// RecordGrantError counts a request rejected with the given OAuth error code
func (m *Metrics) RecordGrantError(ctx context.Context, grantType, code string) {
	if m == nil || m.GrantErrors == nil {
		return
	}
	m.GrantErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("error", code),
	))
}

// RecordCodeReuse counts a replayed authorization code
func (m *Metrics) RecordCodeReuse(ctx context.Context) {
	if m == nil || m.CodeReuseDetected == nil {
		return
	}
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordPKCEFailure counts a code_verifier mismatch
func (m *Metrics) RecordPKCEFailure(ctx context.Context, method string) {
	if m == nil || m.PKCEValidationFailed == nil {
		return
	}
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// RecordDuration records how long an entry point took
func (m *Metrics) RecordDuration(ctx context.Context, operation string, started time.Time) {
	if m == nil || m.RequestDuration == nil {
		return
	}
	elapsed := float64(time.Since(started).Microseconds()) / 1000
	m.RequestDuration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordStorageOperation counts a repository operation and records its latency.
// result is "success" or "error".
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil || m.StorageOperations == nil || m.StorageDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	)
	m.StorageOperations.Add(ctx, 1, attrs)
	m.StorageDuration.Record(ctx, durationMs, attrs)
}
