// Package instrumentation provides OpenTelemetry instrumentation for the
// grant core.
//
// The authorization server opens one span per entry point (token request,
// authorization validation and completion, revocation, introspection, device
// authorization) and records grant outcomes as counters.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-auth-server",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//		TracerProvider: sdkTracerProvider,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv, _ := server.New(deps, &server.Config{Instrumentation: inst})
//
// When Enabled is false, or no providers are supplied, no-op providers are
// used and instrumentation has no overhead.
//
// # Available Metrics
//
//   - oauth.token.issued{grant_type} - access tokens issued
//   - oauth.authorization.completed{grant_type, approved} - authorization requests completed
//   - oauth.token.revoked{token_type_hint} - revocation requests served
//   - oauth.token.introspected{active} - introspection requests served
//   - oauth.grant.errors{grant_type, error} - requests rejected with an OAuth error
//   - oauth.code.reuse_detected - replayed authorization codes
//   - oauth.pkce.validation_failed{method} - code_verifier mismatches
//   - oauth.request.duration{operation} - entry point latency in milliseconds
//
// # Security
//
// Never record token values, codes or client secrets as span attributes.
// Only metadata such as grant type, scope and client id are recorded.
package instrumentation
