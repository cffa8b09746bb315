package oauth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/internal/util"
	"github.com/giantswarm/mcp-oauth-testbed/security"
	"github.com/giantswarm/mcp-oauth-testbed/server"
)

// ServerType selects which role a ServerConfig describes
type ServerType string

const (
	// ServerTypeResource is a bearer-gated resource server publishing RFC 9728 metadata
	ServerTypeResource ServerType = "resource"

	// ServerTypeAuthorization is an authorization server issuing the fixed credentials
	ServerTypeAuthorization ServerType = "auth"
)

// ServerConfig is the single configuration for either server role.
// Exactly one of Resource and Authorization must be set, matching Type.
// It is read-only once passed to NewServer.
type ServerConfig struct {
	// Type selects the server role
	Type ServerType

	// Name is reported by the health endpoint and the MCP server implementation
	Name string

	// Resource holds resource server settings (Type == ServerTypeResource)
	Resource *ResourceConfig

	// Authorization holds authorization server settings (Type == ServerTypeAuthorization)
	Authorization *AuthorizationConfig

	// Credentials are the fixed values shared by both roles out of band
	Credentials Credentials

	// Instrumentation configures OpenTelemetry. Disabled by default.
	Instrumentation instrumentation.Config

	// RateLimit configures the per-IP limiter on /authorize, /token and /register.
	// Zero RequestsPerSecond disables limiting (default).
	RateLimit security.RateLimitConfig

	// EnableAuditLogging emits audit events for issued codes, tokens and challenges
	EnableAuditLogging bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server.
	// Default: 1
	TrustedProxyCount int

	// PublicScheme is the scheme of absolute URLs derived from the Host header.
	// Default: "https"
	PublicScheme string
}

// Credentials are the fixed code, tokens and client values
type Credentials struct {
	// AuthorizationCode is issued by every authorize request.
	// Default: "test_auth_code_123"
	AuthorizationCode string

	// AccessToken is issued by the authorization server and accepted by the resource server.
	// Default: "test_access_token_abc"
	AccessToken string

	// RefreshToken is the only refresh token accepted.
	// Default: "test_refresh_token_xyz"
	RefreshToken string

	// ClientID is returned by client registration.
	// Default: "test_client_id"
	ClientID string

	// ClientSecret is returned by client registration in permissive mode.
	// Default: "test_client_secret"
	ClientSecret string

	// ExpiresIn is the advertised access token lifetime in seconds.
	// Default: 3600
	ExpiresIn int64
}

// ResourceConfig holds resource server settings
type ResourceConfig struct {
	// MetadataPath is where protected resource metadata is served. It may carry
	// any suffix, e.g. "/.well-known/oauth-protected-resource/mcp".
	// Default: "/.well-known/oauth-protected-resource"
	MetadataPath string

	// AuthorizationServerURL is the authorization server advertised in metadata (required)
	AuthorizationServerURL string

	// TenantPath is appended to AuthorizationServerURL in metadata, e.g. "/tenant1"
	TenantPath string

	// ProtectedPath is the bearer-gated endpoint.
	// Default: "/mcp"
	ProtectedPath string

	// DisableWWWAuthenticate omits the WWW-Authenticate challenge header on 401
	// responses to requests without a bearer token. The zero value keeps the header.
	DisableWWWAuthenticate bool

	// Downstream serves authorized requests. Default: the MCP server with the add tool.
	Downstream http.Handler
}

// AuthorizationConfig holds authorization server settings
type AuthorizationConfig struct {
	// Mode selects strict or permissive validation.
	// Default: strict
	Mode server.Mode

	// Issuer overrides the issuer derived from the Host header and TenantPath
	Issuer string

	// TenantPath scopes the issuer and the default metadata path, e.g. "/tenant1"
	TenantPath string

	// MetadataPath overrides where authorization server metadata is served.
	// Default: "/.well-known/oauth-authorization-server" + TenantPath
	MetadataPath string
}

// Validate checks that the configuration describes exactly one server role
func (c *ServerConfig) Validate() error {
	switch c.Type {
	case ServerTypeResource:
		if c.Resource == nil {
			return fmt.Errorf("resource configuration is required for server type %q", c.Type)
		}
		if c.Authorization != nil {
			return fmt.Errorf("authorization configuration is not allowed for server type %q", c.Type)
		}
		if err := c.Resource.validate(); err != nil {
			return err
		}
	case ServerTypeAuthorization:
		if c.Authorization == nil {
			return fmt.Errorf("authorization configuration is required for server type %q", c.Type)
		}
		if c.Resource != nil {
			return fmt.Errorf("resource configuration is not allowed for server type %q", c.Type)
		}
		if err := c.Authorization.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported server type %q (supported: %s, %s)", c.Type, ServerTypeResource, ServerTypeAuthorization)
	}

	if c.PublicScheme != "" && c.PublicScheme != "http" && c.PublicScheme != "https" {
		return fmt.Errorf("public scheme must be http or https, got %q", c.PublicScheme)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	return nil
}

func (c *ResourceConfig) validate() error {
	if c.AuthorizationServerURL == "" {
		return fmt.Errorf("resource authorization server URL is required")
	}
	u, err := url.Parse(c.AuthorizationServerURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("resource authorization server URL must be an absolute URL, got %q", c.AuthorizationServerURL)
	}
	if err := validatePath("resource metadata path", c.MetadataPath); err != nil {
		return err
	}
	if err := validatePath("protected path", c.ProtectedPath); err != nil {
		return err
	}
	if c.MetadataPath != "" && c.MetadataPath == c.ProtectedPath {
		return fmt.Errorf("resource metadata path and protected path must differ")
	}
	return nil
}

func (c *AuthorizationConfig) validate() error {
	switch c.Mode {
	case "", server.ModeStrict, server.ModePermissive:
	default:
		return fmt.Errorf("unsupported authorize mode %q (supported: %s, %s)", c.Mode, server.ModeStrict, server.ModePermissive)
	}
	if c.Issuer != "" {
		u, err := url.Parse(c.Issuer)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("issuer must be an absolute URL, got %q", c.Issuer)
		}
	}
	return validatePath("authorization metadata path", c.MetadataPath)
}

func validatePath(name, p string) error {
	if p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%s must start with '/', got %q", name, p)
	}
	return nil
}

// withDefaults returns a copy of the configuration with defaults applied.
// Sub-configs are copied as well so the caller's values are never modified.
func (c *ServerConfig) withDefaults() *ServerConfig {
	cfg := *c

	if cfg.PublicScheme == "" {
		cfg.PublicScheme = DefaultPublicScheme
	}
	if cfg.TrustedProxyCount <= 0 {
		cfg.TrustedProxyCount = 1
	}
	if cfg.Name == "" {
		cfg.Name = "mcp-oauth-testbed-" + string(cfg.Type)
	}

	creds := &cfg.Credentials
	if creds.AuthorizationCode == "" {
		creds.AuthorizationCode = server.DefaultAuthorizationCode
	}
	if creds.AccessToken == "" {
		creds.AccessToken = server.DefaultAccessToken
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = server.DefaultRefreshToken
	}
	if creds.ClientID == "" {
		creds.ClientID = DefaultClientID
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = DefaultClientSecret
	}
	if creds.ExpiresIn <= 0 {
		creds.ExpiresIn = server.DefaultExpiresIn
	}

	if c.Resource != nil {
		rc := *c.Resource
		if rc.MetadataPath == "" {
			rc.MetadataPath = DefaultResourceMetadataPath
		}
		if rc.ProtectedPath == "" {
			rc.ProtectedPath = DefaultProtectedPath
		}
		rc.TenantPath = util.NormalizePath(rc.TenantPath)
		cfg.Resource = &rc
	}

	if c.Authorization != nil {
		ac := *c.Authorization
		if ac.Mode == "" {
			ac.Mode = server.ModeStrict
		}
		ac.TenantPath = util.NormalizePath(ac.TenantPath)
		if ac.MetadataPath == "" {
			ac.MetadataPath = DefaultAuthorizationMetadataPath + ac.TenantPath
		}
		cfg.Authorization = &ac
	}

	return &cfg
}

// authorizationServers returns the authorization_servers entry of resource metadata
func (c *ResourceConfig) authorizationServers() []string {
	return []string{util.AppendPath(c.AuthorizationServerURL, c.TenantPath)}
}
