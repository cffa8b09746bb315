package oauth

// Endpoint paths served by the authorization server
const (
	EndpointAuthorize = "/authorize"
	EndpointToken     = "/token"
	EndpointRegister  = "/register"
	EndpointJWKS      = "/jwks"
	EndpointLogout    = "/logout"
	EndpointHealth    = "/health"
	EndpointMetrics   = "/metrics"
)

// Well-known discovery paths
const (
	// DefaultResourceMetadataPath is where the resource server publishes RFC 9728 metadata
	DefaultResourceMetadataPath = "/.well-known/oauth-protected-resource"

	// DefaultAuthorizationMetadataPath is where the authorization server publishes RFC 8414
	// metadata; the tenant path is appended to it
	DefaultAuthorizationMetadataPath = "/.well-known/oauth-authorization-server"

	// OpenIDConfigurationPath aliases the extended metadata document; the tenant path is appended to it
	OpenIDConfigurationPath = "/.well-known/openid-configuration"

	// DefaultProtectedPath is the bearer-gated endpoint of the resource server
	DefaultProtectedPath = "/mcp"
)

// Fixed client credentials returned by dynamic client registration
const (
	DefaultClientID     = "test_client_id"
	DefaultClientSecret = "test_client_secret" //nolint:gosec // fixed test double value
	DefaultClientName   = "Test Client"
)

// DefaultPublicScheme is the scheme used when deriving absolute URLs from the Host header
const DefaultPublicScheme = "https"

// Grant types accepted at the token endpoint
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Token endpoint client authentication methods
const (
	TokenEndpointAuthMethodNone              = "none"
	TokenEndpointAuthMethodClientSecretBasic = "client_secret_basic"
	TokenEndpointAuthMethodClientSecretPost  = "client_secret_post"
)

const (
	// bearerPrefix is matched case-sensitively, including the trailing space
	bearerPrefix = "Bearer "

	// tokenLogLength bounds how much of a presented token is written to logs
	tokenLogLength = 8

	// maxRequestBodyBytes caps JSON bodies read by the gate and the registration endpoint
	maxRequestBodyBytes = 1 << 20
)

// Static JWKS stub. The key material is illustrative and cannot verify anything.
const (
	jwksKeyID    = "test-key-1"
	jwksModulus  = "xGOr-H7A-PWG"
	jwksExponent = "AQAB"
)

// LogoutMessage is the body of the logout endpoint
const LogoutMessage = "Logged out successfully"
