package server

import (
	"fmt"
	"log/slog"
)

// Mode selects how strictly the authorization server validates requests
type Mode string

const (
	// ModeStrict enforces response_type=code, S256 PKCE and single-use codes
	ModeStrict Mode = "strict"

	// ModePermissive only requires redirect_uri and accepts the fixed code repeatedly
	ModePermissive Mode = "permissive"
)

// Default credential values shared with the resource server out of band
const (
	DefaultAuthorizationCode = "test_auth_code_123"
	DefaultAccessToken       = "test_access_token_abc" //nolint:gosec // fixed test double value
	DefaultRefreshToken      = "test_refresh_token_xyz" //nolint:gosec // fixed test double value
	DefaultExpiresIn         = 3600

	// DefaultStrictScope is the scope reported by strict mode token responses
	DefaultStrictScope = "mcp"

	// DefaultPermissiveScope is the scope reported by permissive mode token responses
	DefaultPermissiveScope = "openid profile email"
)

// Config holds authorization server configuration
type Config struct {
	// Mode selects strict or permissive validation.
	// Default: ModeStrict
	Mode Mode

	// AuthorizationCode is the code issued by every successful authorize request.
	// Default: "test_auth_code_123"
	AuthorizationCode string

	// AccessToken is returned by every successful token request.
	// Default: "test_access_token_abc"
	AccessToken string

	// RefreshToken is returned alongside the access token and is the only refresh token accepted.
	// Default: "test_refresh_token_xyz"
	RefreshToken string

	// ExpiresIn is the advertised access token lifetime in seconds. It is never enforced.
	// Default: 3600
	ExpiresIn int64

	// Scope is reported in token responses.
	// Default: "mcp" (strict) or "openid profile email" (permissive)
	Scope string
}

// applyDefaults fills unset fields and returns a copy of config
func applyDefaults(config *Config) *Config {
	cfg := *config

	if cfg.Mode == "" {
		cfg.Mode = ModeStrict
	}
	if cfg.AuthorizationCode == "" {
		cfg.AuthorizationCode = DefaultAuthorizationCode
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = DefaultAccessToken
	}
	if cfg.RefreshToken == "" {
		cfg.RefreshToken = DefaultRefreshToken
	}
	if cfg.ExpiresIn <= 0 {
		cfg.ExpiresIn = DefaultExpiresIn
	}
	if cfg.Scope == "" {
		if cfg.Mode == ModePermissive {
			cfg.Scope = DefaultPermissiveScope
		} else {
			cfg.Scope = DefaultStrictScope
		}
	}

	return &cfg
}

// validate checks a defaulted config
func (c *Config) validate() error {
	switch c.Mode {
	case ModeStrict, ModePermissive:
	default:
		return fmt.Errorf("unsupported authorize mode %q (supported: %s, %s)", c.Mode, ModeStrict, ModePermissive)
	}
	return nil
}

// logConfiguration reports the effective mode at startup
func (c *Config) logConfiguration(logger *slog.Logger) {
	if c.Mode == ModePermissive {
		logger.Warn("Authorization server running in permissive mode",
			"pkce_verified", false,
			"single_use_codes", false)
		return
	}
	logger.Info("Authorization server running in strict mode",
		"pkce_method", PKCEMethodS256,
		"expires_in", c.ExpiresIn)
}
