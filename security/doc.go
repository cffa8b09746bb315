// Package security provides the HTTP hygiene shared by both testbed servers:
// response security headers, client IP extraction, request ID propagation,
// an optional per-identifier rate limiter and a structured security auditor.
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket per identifier (normally the client IP)
// with LRU eviction once MaxEntries identifiers are tracked. It is off unless
// the server configuration enables it; the deterministic test flows never hit it.
//
//	limiter := security.NewRateLimiter(security.RateLimitConfig{RequestsPerSecond: 10, Burst: 20}, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//		// reject with 429
//	}
//
// # Request IDs
//
// RequestIDMiddleware preserves a well-formed X-Request-ID from upstream or
// generates a UUID, echoes it on the response and stores it in the request
// context (GetRequestID).
//
// # Audit
//
// Auditor writes security_audit log records through slog. Redirect URIs and
// client IPs are hashed before they are logged.
package security
