package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets the security headers used on OAuth responses that
// carry codes, tokens or client credentials. HSTS is added only when baseURL is https.
func SetSecurityHeaders(w http.ResponseWriter, baseURL string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(baseURL); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Token and registration responses must not be cached (RFC 6749 Section 5.1)
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}

// SetDiscoveryHeaders sets headers for public discovery documents.
// Documents depend on the Host header, so caches must revalidate.
func SetDiscoveryHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Cache-Control", "no-cache")
	h.Add("Vary", "Host")
}
