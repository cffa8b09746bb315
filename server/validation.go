package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
)

// PKCEMethodS256 is the only code challenge method accepted in strict mode
const PKCEMethodS256 = "S256"

// errPKCEMismatch is returned by validatePKCE when the verifier does not hash to the challenge
var errPKCEMismatch = fmt.Errorf("code_verifier does not match code_challenge")

// validatePKCE checks that BASE64URL(SHA256(verifier)) equals the stored challenge.
// Verifier length and charset are not checked; the hash comparison is the only gate.
func validatePKCE(challenge, method, verifier string) error {
	if verifier == "" {
		return fmt.Errorf("code_verifier is required")
	}
	if method != PKCEMethodS256 {
		return fmt.Errorf("unsupported code_challenge_method %q", method)
	}

	computed := S256Challenge(verifier)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return errPKCEMismatch
	}
	return nil
}

// S256Challenge derives the S256 code challenge for verifier
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// secretEqual compares a presented credential with the configured one in constant time
func secretEqual(presented, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// parseRedirectURI parses an absolute redirect URI
func parseRedirectURI(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect_uri: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("redirect_uri must be an absolute URI")
	}
	return u, nil
}

// buildRedirectURL appends code and, when present, state to the redirect URI,
// keeping any query parameters already on it
func buildRedirectURL(redirect *url.URL, code, state string) string {
	u := *redirect
	query := u.Query()
	query.Set("code", code)
	if state != "" {
		query.Set("state", state)
	}
	u.RawQuery = query.Encode()
	return u.String()
}
