package oauth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const addToolCall = `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`

func setupTestResourceServer(t *testing.T, mutate ...func(*ResourceConfig)) *Server {
	t.Helper()

	rc := &ResourceConfig{AuthorizationServerURL: "https://as.example.com"}
	for _, m := range mutate {
		m(rc)
	}

	srv, err := NewServer(&ServerConfig{
		Type:     ServerTypeResource,
		Name:     "test-resource",
		Resource: rc,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(t.Context()) })
	return srv
}

func protectedRequest(path, body, authorization string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Host = "rs.example.com"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}

func TestResource_Metadata(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*ResourceConfig)
		path       string
		wantServer string
	}{
		{
			name:       "default",
			path:       DefaultResourceMetadataPath,
			wantServer: "https://as.example.com",
		},
		{
			name:       "tenant",
			mutate:     func(rc *ResourceConfig) { rc.TenantPath = "tenant1" },
			path:       DefaultResourceMetadataPath,
			wantServer: "https://as.example.com/tenant1",
		},
		{
			name:       "custom path",
			mutate:     func(rc *ResourceConfig) { rc.MetadataPath = "/custom/metadata-path" },
			path:       "/custom/metadata-path",
			wantServer: "https://as.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mutate []func(*ResourceConfig)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			srv := setupTestResourceServer(t, mutate...)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Host = "rs.example.com"
			w := serve(srv, req)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}

			var meta ProtectedResourceMetadata
			if err := json.Unmarshal(w.Body.Bytes(), &meta); err != nil {
				t.Fatalf("failed to decode metadata: %v", err)
			}
			if meta.Resource != "https://rs.example.com" {
				t.Errorf("resource = %q, want %q", meta.Resource, "https://rs.example.com")
			}
			if len(meta.AuthorizationServers) != 1 || meta.AuthorizationServers[0] != tt.wantServer {
				t.Errorf("authorization_servers = %v, want [%s]", meta.AuthorizationServers, tt.wantServer)
			}
		})
	}
}

func TestResource_MissingToken(t *testing.T) {
	for _, authorization := range []string{"", "Basic dXNlcjpwYXNz", "bearer test_access_token_abc"} {
		t.Run("authorization="+authorization, func(t *testing.T) {
			srv := setupTestResourceServer(t)

			w := serve(srv, protectedRequest(DefaultProtectedPath, addToolCall, authorization))
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}

			want := `Bearer resource_metadata="https://rs.example.com/.well-known/oauth-protected-resource"`
			if got := w.Header().Get("WWW-Authenticate"); got != want {
				t.Errorf("WWW-Authenticate = %q, want %q", got, want)
			}

			wantBody := `{"jsonrpc":"2.0","error":{"code":-32001,"message":"Authentication required"},"id":null}`
			if got := strings.TrimSpace(w.Body.String()); got != wantBody {
				t.Errorf("body = %s, want %s", got, wantBody)
			}
		})
	}
}

func TestResource_ChallengeFollowsMetadataPath(t *testing.T) {
	srv := setupTestResourceServer(t, func(rc *ResourceConfig) {
		rc.MetadataPath = "/.well-known/oauth-protected-resource/mcp"
	})

	w := serve(srv, protectedRequest(DefaultProtectedPath, addToolCall, ""))
	want := `Bearer resource_metadata="https://rs.example.com/.well-known/oauth-protected-resource/mcp"`
	if got := w.Header().Get("WWW-Authenticate"); got != want {
		t.Errorf("WWW-Authenticate = %q, want %q", got, want)
	}
}

func TestResource_DisableWWWAuthenticate(t *testing.T) {
	srv := setupTestResourceServer(t, func(rc *ResourceConfig) { rc.DisableWWWAuthenticate = true })

	w := serve(srv, protectedRequest(DefaultProtectedPath, addToolCall, ""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if _, ok := w.Header()["Www-Authenticate"]; ok {
		t.Errorf("unexpected WWW-Authenticate header %q", w.Header().Get("WWW-Authenticate"))
	}
}

func TestResource_InvalidToken(t *testing.T) {
	srv := setupTestResourceServer(t)

	w := serve(srv, protectedRequest(DefaultProtectedPath, addToolCall, "Bearer wrong"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "" {
		t.Errorf("WWW-Authenticate = %q, want none", got)
	}

	wantBody := `{"jsonrpc":"2.0","error":{"code":-32001,"message":"Invalid token"},"id":null}`
	if got := strings.TrimSpace(w.Body.String()); got != wantBody {
		t.Errorf("body = %s, want %s", got, wantBody)
	}
}

func TestResource_ValidTokenReachesDownstream(t *testing.T) {
	var gotBody string
	srv := setupTestResourceServer(t, func(rc *ResourceConfig) {
		rc.Downstream = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := new(strings.Builder)
			_, _ = io.Copy(buf, r.Body)
			gotBody = buf.String()
			w.WriteHeader(http.StatusAccepted)
		})
	})

	w := serve(srv, protectedRequest(DefaultProtectedPath, addToolCall, "Bearer test_access_token_abc"))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if gotBody != addToolCall {
		t.Errorf("downstream body = %q, want %q", gotBody, addToolCall)
	}
}

func TestResource_InvalidJSON(t *testing.T) {
	called := false
	srv := setupTestResourceServer(t, func(rc *ResourceConfig) {
		rc.Downstream = http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	})

	w := serve(srv, protectedRequest(DefaultProtectedPath, "{not json", "Bearer test_access_token_abc"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	wantBody := `{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal server error"},"id":null}`
	if got := strings.TrimSpace(w.Body.String()); got != wantBody {
		t.Errorf("body = %s, want %s", got, wantBody)
	}
	if called {
		t.Error("downstream should not be called for invalid JSON")
	}
}

func TestResource_DownstreamPanic(t *testing.T) {
	srv := setupTestResourceServer(t, func(rc *ResourceConfig) {
		rc.Downstream = http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	})

	w := serve(srv, protectedRequest(DefaultProtectedPath, addToolCall, "Bearer test_access_token_abc"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(w.Body.String(), `"code":-32603`) {
		t.Errorf("body = %s, want JSON-RPC internal error", w.Body.String())
	}
}

func TestResource_AuthorizationRoutesAbsent(t *testing.T) {
	srv := setupTestResourceServer(t)

	for _, path := range []string{EndpointAuthorize, DefaultAuthorizationMetadataPath} {
		if w := serve(srv, httptest.NewRequest(http.MethodGet, path, nil)); w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}
