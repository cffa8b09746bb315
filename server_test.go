package oauth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/mcpserver"
	"github.com/giantswarm/mcp-oauth-testbed/server"
)

func TestNewServer(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		if _, err := NewServer(nil, nil); err == nil {
			t.Fatal("NewServer(nil) should fail")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewServer(&ServerConfig{Type: ServerTypeResource}, testLogger())
		if err == nil || !strings.Contains(err.Error(), "invalid server config") {
			t.Fatalf("NewServer() error = %v, want invalid server config", err)
		}
	})

	t.Run("authorization server", func(t *testing.T) {
		srv := setupTestAuthServer(t, server.ModeStrict)
		if srv.AuthServer == nil || srv.Store == nil {
			t.Fatal("authorization server should have a state machine and a store")
		}
		if srv.RateLimiter != nil {
			t.Error("rate limiting should be off by default")
		}
	})

	t.Run("resource server", func(t *testing.T) {
		srv := setupTestResourceServer(t)
		if srv.AuthServer != nil || srv.Store != nil {
			t.Error("resource server should not carry authorization state")
		}
		if srv.Config.Name != "test-resource" {
			t.Errorf("Name = %q", srv.Config.Name)
		}
	})

	t.Run("caller config untouched", func(t *testing.T) {
		config := &ServerConfig{Type: ServerTypeAuthorization, Authorization: &AuthorizationConfig{}}
		srv, err := NewServer(config, testLogger())
		if err != nil {
			t.Fatalf("NewServer() error = %v", err)
		}
		defer func() { _ = srv.Shutdown(t.Context()) }()

		if config.Name != "" || config.Authorization.MetadataPath != "" || config.Credentials.AccessToken != "" {
			t.Errorf("NewServer modified the caller's config: %+v", config)
		}
	})
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := setupTestAuthServer(t, server.ModeStrict, func(c *ServerConfig) {
		c.Instrumentation = instrumentation.Config{
			Enabled:         true,
			MetricsExporter: instrumentation.MetricsExporterPrometheus,
		}
	})

	serve(srv, authorizeRequest(strictAuthorizeParams()))

	w := serve(srv, httptest.NewRequest(http.MethodGet, EndpointMetrics, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{"oauth_http_requests", "storage_authorization_requests_pending"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer_MetricsEndpointDisabled(t *testing.T) {
	srv := setupTestAuthServer(t, server.ModeStrict)

	if w := serve(srv, httptest.NewRequest(http.MethodGet, EndpointMetrics, nil)); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// TestServer_EndToEnd drives discovery, the code flow and an authorized tool
// call against a paired resource and authorization server.
func TestServer_EndToEnd(t *testing.T) {
	ctx := t.Context()

	authSrv := setupTestAuthServer(t, server.ModeStrict, func(c *ServerConfig) {
		c.PublicScheme = "http"
	})
	as := httptest.NewServer(authSrv.Handler())
	defer as.Close()

	resourceSrv, err := NewServer(&ServerConfig{
		Type:         ServerTypeResource,
		Name:         "test-resource",
		PublicScheme: "http",
		Resource:     &ResourceConfig{AuthorizationServerURL: as.URL},
	}, testLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	defer func() { _ = resourceSrv.Shutdown(ctx) }()
	rs := httptest.NewServer(resourceSrv.Handler())
	defer rs.Close()

	// 1. unauthenticated request yields the metadata challenge
	resp, err := http.Post(rs.URL+DefaultProtectedPath, "application/json", strings.NewReader(addToolCall))
	if err != nil {
		t.Fatalf("POST protected: %v", err)
	}
	_ = resp.Body.Close()
	challenge := resp.Header.Get("WWW-Authenticate")
	metadataURL := strings.TrimSuffix(strings.TrimPrefix(challenge, `Bearer resource_metadata="`), `"`)
	if metadataURL != rs.URL+DefaultResourceMetadataPath {
		t.Fatalf("challenge = %q", challenge)
	}

	// 2. resource metadata points at the authorization server
	var prm ProtectedResourceMetadata
	getJSON(t, metadataURL, &prm)
	if len(prm.AuthorizationServers) != 1 || prm.AuthorizationServers[0] != as.URL {
		t.Fatalf("authorization_servers = %v, want [%s]", prm.AuthorizationServers, as.URL)
	}

	// 3. authorization server metadata
	var asm AuthorizationServerMetadata
	getJSON(t, prm.AuthorizationServers[0]+DefaultAuthorizationMetadataPath, &asm)
	if asm.Issuer != as.URL {
		t.Errorf("issuer = %q, want %q", asm.Issuer, as.URL)
	}

	// 4. authorize with PKCE and capture the redirect
	oauthConfig := &oauth2.Config{
		ClientID:    DefaultClientID,
		RedirectURL: "http://localhost:8765/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   asm.AuthorizationEndpoint,
			TokenURL:  asm.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	verifier := oauth2.GenerateVerifier()

	noFollow := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err = noFollow.Get(oauthConfig.AuthCodeURL("state-1", oauth2.S256ChallengeOption(verifier)))
	if err != nil {
		t.Fatalf("GET authorize: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("authorize status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if location.Query().Get("state") != "state-1" {
		t.Errorf("state = %q, want %q", location.Query().Get("state"), "state-1")
	}

	// 5. exchange the code
	token, err := oauthConfig.Exchange(ctx, location.Query().Get("code"), oauth2.VerifierOption(verifier))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if token.AccessToken != server.DefaultAccessToken || token.RefreshToken != server.DefaultRefreshToken {
		t.Errorf("token = %+v", token)
	}

	// 6. the code is single use
	if _, err := oauthConfig.Exchange(ctx, location.Query().Get("code"), oauth2.VerifierOption(verifier)); err == nil {
		t.Error("second Exchange() should fail")
	}

	// 7. authorized tool call
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   rs.URL + DefaultProtectedPath,
		HTTPClient: oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)),
	}, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      mcpserver.ToolAdd,
		Arguments: map[string]any{"a": 2, "b": 3},
	})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("content = %v", result.Content)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok || text.Text != "2 + 3 = 5" {
		t.Errorf("result = %#v, want text %q", result.Content[0], "2 + 3 = 5")
	}
}

func getJSON(t *testing.T, target string, v any) {
	t.Helper()

	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, body = %s", target, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", target, err)
	}
}
