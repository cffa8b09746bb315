package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
)

// Auditor handles security event logging. Client IPs and redirect URIs are hashed.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	metrics *instrumentation.Metrics
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// SetMetrics makes the auditor count events in oauth.audit.events.total
func (a *Auditor) SetMetrics(metrics *instrumentation.Metrics) {
	a.metrics = metrics
}

// Event represents a security audit event
type Event struct {
	Type      string
	ClientID  string
	IPAddress string
	RequestID string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"client_id", event.ClientID,
		"ip_hash", hashForLogging(event.IPAddress),
		"request_id", event.RequestID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.metrics != nil {
		a.metrics.RecordAuditEvent(context.Background(), event.Type)
	}
}

// LogAuthorizationCodeIssued logs a successful /authorize; replaced reports an overwritten pending request
func (a *Auditor) LogAuthorizationCodeIssued(ctx context.Context, clientID, redirectURI, ipAddress string, replaced bool) {
	if replaced {
		a.LogEvent(Event{
			Type:      EventAuthorizationRequestReplaced,
			ClientID:  clientID,
			IPAddress: ipAddress,
			RequestID: GetRequestID(ctx),
		})
	}
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		RequestID: GetRequestID(ctx),
		Details: map[string]any{
			"redirect_uri_hash": hashForLogging(redirectURI),
		},
	})
}

// LogTokenIssued logs a successful code exchange
func (a *Auditor) LogTokenIssued(ctx context.Context, clientID, ipAddress, scope string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		RequestID: GetRequestID(ctx),
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed logs a refresh token grant
func (a *Auditor) LogTokenRefreshed(ctx context.Context, ipAddress string, success bool) {
	a.LogEvent(Event{
		Type:      EventTokenRefreshed,
		IPAddress: ipAddress,
		RequestID: GetRequestID(ctx),
		Details: map[string]any{
			"success": success,
		},
	})
}

// LogCodeRedemptionFailed logs a rejected authorization_code grant
func (a *Auditor) LogCodeRedemptionFailed(ctx context.Context, clientID, ipAddress, reason string) {
	eventType := EventCodeRedemptionFailed
	if reason == "pkce_mismatch" {
		eventType = EventInvalidPKCE
	}
	a.LogEvent(Event{
		Type:      eventType,
		ClientID:  clientID,
		IPAddress: ipAddress,
		RequestID: GetRequestID(ctx),
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogClientRegistered logs a /register response
func (a *Auditor) LogClientRegistered(ctx context.Context, clientID, clientName, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventClientRegistered,
		ClientID:  clientID,
		IPAddress: ipAddress,
		RequestID: GetRequestID(ctx),
		Details: map[string]any{
			"client_name": clientName,
		},
	})
}

// LogAuthChallengeIssued logs a 401 from the resource gate
func (a *Auditor) LogAuthChallengeIssued(ctx context.Context, ipAddress, reason string, withHeader bool) {
	a.LogEvent(Event{
		Type:      EventAuthChallengeIssued,
		IPAddress: ipAddress,
		RequestID: GetRequestID(ctx),
		Details: map[string]any{
			"reason":           reason,
			"www_authenticate": withHeader,
		},
	})
}

// LogRateLimitExceeded logs a request rejected by the rate limiter
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		RequestID: GetRequestID(ctx),
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging returns the first 16 hex characters of the SHA-256 of sensitive
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
