package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
//
// SECURITY WARNING: never set these to credential values (access tokens,
// refresh tokens, authorization codes, client secrets).
const (
	AttrClientID      = "oauth.client_id"
	AttrUserID        = "oauth.user_id"
	AttrScope         = "oauth.scope"
	AttrGrantType     = "oauth.grant_type"
	AttrResponseType  = "oauth.response_type"
	AttrPKCEMethod    = "oauth.pkce.method"
	AttrTokenTypeHint = "oauth.token_type_hint" //nolint:gosec // hint name, not a token
	AttrCodeReuse     = "oauth.code.reuse"
	AttrApproved      = "oauth.approved"
	AttrActive        = "oauth.active"
	AttrError         = "oauth.error"
	AttrOperation     = "oauth.operation"

	AttrStorageOperation = "storage.operation"
	AttrStorageType      = "storage.type"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddOAuthFlowAttributes adds common OAuth flow attributes to a span, skipping empty values
func AddOAuthFlowAttributes(span trace.Span, clientID, userID, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if userID != "" {
		SetSpanAttributes(span, attribute.String(AttrUserID, userID))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddGrantAttributes records which grant handled the request
func AddGrantAttributes(span trace.Span, grantType string) {
	if grantType != "" {
		SetSpanAttributes(span, attribute.String(AttrGrantType, grantType))
	}
}

// AddPKCEAttributes adds PKCE-related attributes to a span (nil-safe)
func AddPKCEAttributes(span trace.Span, method string) {
	if method != "" {
		SetSpanAttributes(span, attribute.String(AttrPKCEMethod, method))
	}
}

// AddCodeReuseAttributes marks a span that detected a replayed authorization code
func AddCodeReuseAttributes(span trace.Span) {
	SetSpanAttributes(span, attribute.Bool(AttrCodeReuse, true))
}

// AddTokenTypeHintAttributes records the token_type_hint of a revoke or
// introspect request, skipping empty values
func AddTokenTypeHintAttributes(span trace.Span, hint string) {
	if hint != "" {
		SetSpanAttributes(span, attribute.String(AttrTokenTypeHint, hint))
	}
}

// AddIntrospectionAttributes records whether an introspected token was active
func AddIntrospectionAttributes(span trace.Span, active bool) {
	SetSpanAttributes(span, attribute.Bool(AttrActive, active))
}

// AddAuthorizationAttributes records the response type of an authorize
// request, skipping empty values
func AddAuthorizationAttributes(span trace.Span, responseType string) {
	if responseType != "" {
		SetSpanAttributes(span, attribute.String(AttrResponseType, responseType))
	}
}

// AddApprovalAttributes records the resource owner's decision
func AddApprovalAttributes(span trace.Span, approved bool) {
	SetSpanAttributes(span, attribute.Bool(AttrApproved, approved))
}

// AddErrorAttributes records the failed operation and its OAuth error code
func AddErrorAttributes(span trace.Span, operation, code string) {
	SetSpanAttributes(span,
		attribute.String(AttrOperation, operation),
		attribute.String(AttrError, code),
	)
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}
