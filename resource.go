package oauth

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/internal/util"
	"github.com/giantswarm/mcp-oauth-testbed/security"
)

// Challenge reasons recorded in metrics and audit events
const (
	challengeReasonMissingToken = "missing_token"
	challengeReasonInvalidToken = "invalid_token"
)

// ServeProtectedResourceMetadata serves RFC 9728 Protected Resource Metadata.
// The resource is the request base URL; the authorization server carries the
// configured tenant path.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()
	security.SetDiscoveryHeaders(w)

	render.JSON(w, r, ProtectedResourceMetadata{
		Resource:             h.baseURL(r),
		AuthorizationServers: h.srv.Config.Resource.authorizationServers(),
	})

	h.recordHTTPMetrics(r.Context(), "resource_metadata", r.Method, http.StatusOK, startTime)
}

// RequireBearerToken is middleware that admits only requests carrying the
// configured access token.
//
// A missing header, or one not starting with "Bearer ", gets "Authentication
// required" plus the resource_metadata challenge unless DisableWWWAuthenticate
// is set. A wrong token gets "Invalid token" and never the challenge header.
func (h *Handler) RequireBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx := r.Context()

		var span trace.Span
		if h.tracer != nil {
			ctx, span = h.tracer.Start(ctx, "oauth.http.require_bearer_token")
			defer span.End()
		}
		r = r.WithContext(ctx)

		rc := h.srv.Config.Resource
		clientIP := h.clientIP(r)
		instrumentation.AddSecurityAttributes(span, clientIP, security.GetRequestID(ctx))

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			withHeader := !rc.DisableWWWAuthenticate
			if withHeader {
				w.Header().Set("WWW-Authenticate", h.formatWWWAuthenticate(r))
			}
			h.recordChallenge(r, span, clientIP, challengeReasonMissingToken, withHeader)
			h.recordHTTPMetrics(ctx, "protected", r.Method, http.StatusUnauthorized, startTime)
			h.writeJSONRPCError(w, r, http.StatusUnauthorized, JSONRPCCodeUnauthorized, JSONRPCMessageAuthenticationRequired)
			return
		}

		token := strings.TrimPrefix(authHeader, bearerPrefix)
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.srv.Config.Credentials.AccessToken)) != 1 {
			h.logger.Debug("Rejected bearer token",
				"ip", clientIP,
				"token_prefix", util.SafeTruncate(token, tokenLogLength))
			h.recordChallenge(r, span, clientIP, challengeReasonInvalidToken, false)
			h.recordHTTPMetrics(ctx, "protected", r.Method, http.StatusUnauthorized, startTime)
			h.writeJSONRPCError(w, r, http.StatusUnauthorized, JSONRPCCodeUnauthorized, JSONRPCMessageInvalidToken)
			return
		}

		instrumentation.SetSpanSuccess(span)
		next.ServeHTTP(w, r)
	})
}

// dispatchDownstream checks that the body is JSON, then hands the request to
// next. Unparseable bodies and panics in next become JSON-RPC internal errors.
func (h *Handler) dispatchDownstream(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx := r.Context()

		body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		payload, err := io.ReadAll(body)
		if closeErr := body.Close(); closeErr != nil {
			h.logger.Warn("Failed to close request body", "error", closeErr)
		}
		if err == nil && !json.Valid(payload) {
			err = errors.New("request body is not valid JSON")
		}
		if err != nil {
			h.logger.Warn("Rejected protected request body", "error", err)
			h.recordHTTPMetrics(ctx, "protected", r.Method, http.StatusInternalServerError, startTime)
			h.writeJSONRPCError(w, r, http.StatusInternalServerError, JSONRPCCodeInternalError, JSONRPCMessageInternalError)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(payload))
		r.ContentLength = int64(len(payload))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			rec := recover()
			if rec == nil {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				h.recordHTTPMetrics(ctx, "protected", r.Method, status, startTime)
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
				panic(rec)
			}

			h.logger.Error("Downstream handler panicked",
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()))
			h.recordHTTPMetrics(ctx, "protected", r.Method, http.StatusInternalServerError, startTime)
			if ww.Status() == 0 {
				h.writeJSONRPCError(ww, r, http.StatusInternalServerError, JSONRPCCodeInternalError, JSONRPCMessageInternalError)
			}
		}()

		h.logger.Debug("Dispatching authorized request", "bytes", len(payload))
		next.ServeHTTP(ww, r)
	})
}

// formatWWWAuthenticate builds the RFC 9728 challenge pointing at the metadata document
func (h *Handler) formatWWWAuthenticate(r *http.Request) string {
	return fmt.Sprintf(`Bearer resource_metadata="%s%s"`, h.baseURL(r), h.srv.Config.Resource.MetadataPath)
}

func (h *Handler) recordChallenge(r *http.Request, span trace.Span, clientIP, reason string, withHeader bool) {
	ctx := r.Context()

	instrumentation.AddChallengeAttributes(span, reason, withHeader)
	instrumentation.SetSpanError(span, reason)
	h.srv.Instrumentation.Metrics().RecordAuthChallenge(ctx, reason, withHeader)
	h.srv.Auditor.LogAuthChallengeIssued(ctx, clientIP, reason, withHeader)

	h.logger.Info("Authentication challenge issued",
		"ip", clientIP,
		"reason", reason,
		"www_authenticate", withHeader)
}

func (h *Handler) writeJSONRPCError(w http.ResponseWriter, r *http.Request, status, code int, message string) {
	render.Status(r, status)
	render.JSON(w, r, NewJSONRPCErrorResponse(code, message))
}
