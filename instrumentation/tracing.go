package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// Never set these to credential values (codes, tokens, verifiers, secrets).
// Record presence, method names or validation outcomes instead.
const (
	// OAuth flow attributes
	AttrClientID      = "oauth.client_id"
	AttrScope         = "oauth.scope"
	AttrPKCEMethod    = "oauth.pkce.method"
	AttrGrantType     = "oauth.grant_type"
	AttrResponseType  = "oauth.response_type"
	AttrAuthorizeMode = "oauth.authorize_mode"
	AttrStatePresent  = "oauth.state_present"
	AttrError         = "oauth.error"

	// Resource gate attributes
	AttrChallengeReason = "resource.challenge_reason"
	AttrChallengeHeader = "resource.www_authenticate"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Security attributes
	AttrClientIP  = "security.client_ip"
	AttrRequestID = "security.request_id"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
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

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddOAuthFlowAttributes adds common OAuth flow attributes to a span (nil-safe)
func AddOAuthFlowAttributes(span trace.Span, clientID, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddPKCEAttributes adds PKCE-related attributes to a span (nil-safe)
func AddPKCEAttributes(span trace.Span, method string) {
	if method != "" {
		SetSpanAttributes(span, attribute.String(AttrPKCEMethod, method))
	}
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddChallengeAttributes records why the resource gate rejected a request (nil-safe)
func AddChallengeAttributes(span trace.Span, reason string, withHeader bool) {
	SetSpanAttributes(span,
		attribute.String(AttrChallengeReason, reason),
		attribute.Bool(AttrChallengeHeader, withHeader),
	)
}

// AddSecurityAttributes adds client IP and request ID to a span (nil-safe)
func AddSecurityAttributes(span trace.Span, clientIP, requestID string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
	if requestID != "" {
		SetSpanAttributes(span, attribute.String(AttrRequestID, requestID))
	}
}
