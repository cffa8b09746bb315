package security

import (
	"net/http/httptest"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		wantHSTS bool
	}{
		{
			name:     "HTTPS server",
			baseURL:  "https://example.com",
			wantHSTS: true,
		},
		{
			name:     "HTTP server",
			baseURL:  "http://localhost:3002",
			wantHSTS: false,
		},
		{
			name:     "invalid URL",
			baseURL:  "://invalid",
			wantHSTS: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			SetSecurityHeaders(w, tt.baseURL)

			want := map[string]string{
				"X-Frame-Options":        "DENY",
				"X-Content-Type-Options": "nosniff",
				"Referrer-Policy":        "no-referrer",
				"Cache-Control":          "no-store",
				"Pragma":                 "no-cache",
			}
			for header, value := range want {
				if got := w.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}

			gotHSTS := w.Header().Get("Strict-Transport-Security") != ""
			if gotHSTS != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", gotHSTS, tt.wantHSTS)
			}
		})
	}
}

func TestSetDiscoveryHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	SetDiscoveryHeaders(w)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want %q", got, "no-cache")
	}
	if got := w.Header().Get("Vary"); got != "Host" {
		t.Errorf("Vary = %q, want %q", got, "Host")
	}
}
