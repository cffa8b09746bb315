package oauth

import (
	"strings"
	"testing"

	"github.com/giantswarm/mcp-oauth-testbed/server"
)

func validResourceConfig() *ServerConfig {
	return &ServerConfig{
		Type: ServerTypeResource,
		Resource: &ResourceConfig{
			AuthorizationServerURL: "https://as.example.com",
		},
	}
}

func validAuthorizationConfig() *ServerConfig {
	return &ServerConfig{
		Type:          ServerTypeAuthorization,
		Authorization: &AuthorizationConfig{},
	}
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *ServerConfig
		wantErr string
	}{
		{
			name:   "valid resource",
			config: validResourceConfig,
		},
		{
			name:   "valid authorization",
			config: validAuthorizationConfig,
		},
		{
			name:    "unknown type",
			config:  func() *ServerConfig { return &ServerConfig{Type: "proxy"} },
			wantErr: "unsupported server type",
		},
		{
			name: "resource without sub-config",
			config: func() *ServerConfig {
				return &ServerConfig{Type: ServerTypeResource}
			},
			wantErr: "resource configuration is required",
		},
		{
			name: "resource with authorization sub-config",
			config: func() *ServerConfig {
				c := validResourceConfig()
				c.Authorization = &AuthorizationConfig{}
				return c
			},
			wantErr: "authorization configuration is not allowed",
		},
		{
			name: "authorization with resource sub-config",
			config: func() *ServerConfig {
				c := validAuthorizationConfig()
				c.Resource = &ResourceConfig{}
				return c
			},
			wantErr: "resource configuration is not allowed",
		},
		{
			name: "missing authorization server URL",
			config: func() *ServerConfig {
				c := validResourceConfig()
				c.Resource.AuthorizationServerURL = ""
				return c
			},
			wantErr: "authorization server URL is required",
		},
		{
			name: "relative authorization server URL",
			config: func() *ServerConfig {
				c := validResourceConfig()
				c.Resource.AuthorizationServerURL = "as.example.com"
				return c
			},
			wantErr: "must be an absolute URL",
		},
		{
			name: "metadata path without slash",
			config: func() *ServerConfig {
				c := validResourceConfig()
				c.Resource.MetadataPath = "custom/metadata-path"
				return c
			},
			wantErr: "must start with '/'",
		},
		{
			name: "metadata path equals protected path",
			config: func() *ServerConfig {
				c := validResourceConfig()
				c.Resource.MetadataPath = "/mcp"
				c.Resource.ProtectedPath = "/mcp"
				return c
			},
			wantErr: "must differ",
		},
		{
			name: "unknown mode",
			config: func() *ServerConfig {
				c := validAuthorizationConfig()
				c.Authorization.Mode = "lenient"
				return c
			},
			wantErr: "unsupported authorize mode",
		},
		{
			name: "relative issuer",
			config: func() *ServerConfig {
				c := validAuthorizationConfig()
				c.Authorization.Issuer = "/issuer"
				return c
			},
			wantErr: "issuer must be an absolute URL",
		},
		{
			name: "bad scheme",
			config: func() *ServerConfig {
				c := validAuthorizationConfig()
				c.PublicScheme = "ftp"
				return c
			},
			wantErr: "public scheme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config().Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_WithDefaults(t *testing.T) {
	t.Run("resource", func(t *testing.T) {
		original := validResourceConfig()
		original.Resource.TenantPath = "tenant1/"
		cfg := original.withDefaults()

		if cfg.PublicScheme != "https" {
			t.Errorf("PublicScheme = %q, want %q", cfg.PublicScheme, "https")
		}
		if cfg.Resource.MetadataPath != DefaultResourceMetadataPath {
			t.Errorf("MetadataPath = %q, want %q", cfg.Resource.MetadataPath, DefaultResourceMetadataPath)
		}
		if cfg.Resource.ProtectedPath != DefaultProtectedPath {
			t.Errorf("ProtectedPath = %q, want %q", cfg.Resource.ProtectedPath, DefaultProtectedPath)
		}
		if cfg.Resource.TenantPath != "/tenant1" {
			t.Errorf("TenantPath = %q, want %q", cfg.Resource.TenantPath, "/tenant1")
		}
		if original.Resource.MetadataPath != "" {
			t.Error("withDefaults() modified the caller's resource config")
		}
		if cfg.Resource.DisableWWWAuthenticate {
			t.Error("WWW-Authenticate should be enabled by default")
		}
	})

	t.Run("credentials", func(t *testing.T) {
		creds := validResourceConfig().withDefaults().Credentials
		want := Credentials{
			AuthorizationCode: "test_auth_code_123",
			AccessToken:       "test_access_token_abc",
			RefreshToken:      "test_refresh_token_xyz",
			ClientID:          "test_client_id",
			ClientSecret:      "test_client_secret",
			ExpiresIn:         3600,
		}
		if creds != want {
			t.Errorf("Credentials = %+v, want %+v", creds, want)
		}
	})

	t.Run("authorization tenant metadata path", func(t *testing.T) {
		c := validAuthorizationConfig()
		c.Authorization.TenantPath = "/tenant1"
		cfg := c.withDefaults()

		if cfg.Authorization.Mode != server.ModeStrict {
			t.Errorf("Mode = %q, want %q", cfg.Authorization.Mode, server.ModeStrict)
		}
		want := "/.well-known/oauth-authorization-server/tenant1"
		if cfg.Authorization.MetadataPath != want {
			t.Errorf("MetadataPath = %q, want %q", cfg.Authorization.MetadataPath, want)
		}
	})

	t.Run("authorization servers with tenant", func(t *testing.T) {
		rc := &ResourceConfig{AuthorizationServerURL: "https://as.example.com/", TenantPath: "/tenant1"}
		got := rc.authorizationServers()
		if len(got) != 1 || got[0] != "https://as.example.com/tenant1" {
			t.Errorf("authorizationServers() = %v, want [https://as.example.com/tenant1]", got)
		}
	})
}
