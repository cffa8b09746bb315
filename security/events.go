package security

// Event type constants for security audit logging.
const (
	// EventAuthorizationCodeIssued is logged when /authorize redirects with a code
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationRequestReplaced is logged when a new /authorize overwrites a pending request
	EventAuthorizationRequestReplaced = "authorization_request_replaced"

	// EventTokenIssued is logged when a code is exchanged for tokens
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is exchanged
	EventTokenRefreshed = "token_refreshed" //nolint:gosec // event name, not a credential

	// EventCodeRedemptionFailed is logged when /token rejects an authorization_code grant
	EventCodeRedemptionFailed = "code_redemption_failed"

	// EventInvalidPKCE is logged when a code verifier does not match the stored challenge
	EventInvalidPKCE = "invalid_pkce"

	// EventClientRegistered is logged when /register returns a client record
	EventClientRegistered = "client_registered"

	// EventAuthChallengeIssued is logged when the resource gate answers 401
	EventAuthChallengeIssued = "auth_challenge_issued"

	// EventRateLimitExceeded is logged when the optional rate limiter rejects a request
	EventRateLimitExceeded = "rate_limit_exceeded"
)
