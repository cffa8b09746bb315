package storage

import (
	"context"
	"errors"
	"time"
)

// ErrAuthorizationRequestNotFound is returned when no pending request exists for a code,
// either because it was never issued or because it was already redeemed.
var ErrAuthorizationRequestNotFound = errors.New("authorization request not found")

// AuthorizationRequest is the state recorded by /authorize and consumed by /token.
type AuthorizationRequest struct {
	// Code is the authorization code the request is keyed by
	Code string

	// ClientID is the client_id supplied at /authorize (not validated)
	ClientID string

	// RedirectURI must match the redirect_uri presented at /token exactly
	RedirectURI string

	// State is echoed back on the redirect; may be empty
	State string

	// CodeChallenge is the base64url PKCE challenge supplied by the client
	CodeChallenge string

	// CodeChallengeMethod is the PKCE method, always "S256" in strict mode
	CodeChallengeMethod string

	// CreatedAt records when /authorize stored the request (informational, never expires)
	CreatedAt time.Time
}

// AuthorizationRequestStore holds pending authorization requests keyed by code.
// All methods accept context.Context for tracing.
type AuthorizationRequestStore interface {
	// SaveAuthorizationRequest stores req under req.Code, replacing any pending request for that code
	SaveAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) error

	// GetAuthorizationRequest returns a copy of the pending request for code
	GetAuthorizationRequest(ctx context.Context, code string) (*AuthorizationRequest, error)

	// RedeemAuthorizationRequest looks up the pending request for code, runs validate on it
	// and deletes it only if validate returns nil. Lookup, validation and deletion happen
	// under one lock, so concurrent redemptions of the same code have at most one winner.
	// When validate fails its error is returned and the request stays pending.
	RedeemAuthorizationRequest(ctx context.Context, code string, validate func(*AuthorizationRequest) error) (*AuthorizationRequest, error)

	// DeleteAuthorizationRequest removes the pending request for code, if any
	DeleteAuthorizationRequest(ctx context.Context, code string) error
}
