package server

import "fmt"

// OAuth error codes produced by the state machine
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
)

// Failure reasons, used as metric and audit labels. Never sent to clients.
const (
	ReasonUnknownCode         = "unknown_code"
	ReasonNotPending          = "not_pending"
	ReasonRedirectURIMismatch = "redirect_uri_mismatch"
	ReasonPKCEMismatch        = "pkce_mismatch"
	ReasonInvalidRefreshToken = "invalid_refresh_token" //nolint:gosec // label, not a credential
	ReasonMissingRedirectURI  = "missing_redirect_uri"
	ReasonInvalidRedirectURI  = "invalid_redirect_uri"
	ReasonResponseType        = "unsupported_response_type"
	ReasonPKCERequired        = "pkce_required"
	ReasonGrantType           = "unsupported_grant_type"
)

// GrantError is a client-visible OAuth failure. Description is empty in permissive
// mode, where error responses only carry the error code.
type GrantError struct {
	Code        string
	Description string
	Reason      string
}

// Error implements the error interface
func (e *GrantError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Description, e.Reason)
}

// newError builds an Error, dropping the description in permissive mode
func (s *Server) newError(code, description, reason string) *GrantError {
	if s.Config.Mode == ModePermissive {
		description = ""
	}
	return &GrantError{Code: code, Description: description, Reason: reason}
}
