package oauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/internal/util"
	"github.com/giantswarm/mcp-oauth-testbed/security"
	"github.com/giantswarm/mcp-oauth-testbed/server"
)

// Handler is a thin HTTP adapter for a Server.
// It handles HTTP requests and delegates grant logic to the authorization state machine.
type Handler struct {
	srv    *Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		srv:    srv,
		logger: logger,
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// RegisterRoutes mounts the routes of the configured server role on r
func (h *Handler) RegisterRoutes(r chi.Router) {
	cfg := h.srv.Config

	r.Use(security.RequestIDMiddleware)

	r.Get(EndpointHealth, h.ServeHealth)
	if metrics := h.srv.Instrumentation.MetricsHandler(); metrics != nil {
		r.Method(http.MethodGet, EndpointMetrics, metrics)
	}

	switch cfg.Type {
	case ServerTypeResource:
		r.Get(cfg.Resource.MetadataPath, h.ServeProtectedResourceMetadata)
		r.With(h.RequireBearerToken).Method(http.MethodPost, cfg.Resource.ProtectedPath, h.dispatchDownstream(h.srv.downstream))

	case ServerTypeAuthorization:
		ac := cfg.Authorization
		r.Get(ac.MetadataPath, h.ServeAuthorizationServerMetadata)

		if ac.Mode == server.ModePermissive {
			r.Get(OpenIDConfigurationPath+ac.TenantPath, h.ServeOpenIDConfiguration)
			r.Get(EndpointJWKS, h.ServeJWKS)
			r.Get(EndpointLogout, h.ServeLogout)
		}

		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Get(EndpointAuthorize, h.ServeAuthorization)
			r.Post(EndpointToken, h.ServeToken)
			r.Post(EndpointRegister, h.ServeClientRegistration)
		})
	}
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata.
// Strict mode publishes the minimal document; permissive mode the extended one.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()
	security.SetDiscoveryHeaders(w)

	if h.permissive() {
		render.JSON(w, r, h.buildExtendedMetadata(r))
	} else {
		render.JSON(w, r, h.buildAuthServerMetadata(r))
	}

	h.recordHTTPMetrics(r.Context(), "metadata", r.Method, http.StatusOK, startTime)
}

// ServeOpenIDConfiguration serves the extended metadata under the OpenID discovery path
func (h *Handler) ServeOpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()
	security.SetDiscoveryHeaders(w)
	render.JSON(w, r, h.buildExtendedMetadata(r))
	h.recordHTTPMetrics(r.Context(), "openid_configuration", r.Method, http.StatusOK, startTime)
}

// issuer returns the configured issuer or the request base URL plus tenant path.
// Computed per request since the Host header may vary.
func (h *Handler) issuer(r *http.Request) string {
	ac := h.srv.Config.Authorization
	if ac.Issuer != "" {
		return ac.Issuer
	}
	return h.baseURL(r) + ac.TenantPath
}

func (h *Handler) buildAuthServerMetadata(r *http.Request) AuthorizationServerMetadata {
	baseURL := h.baseURL(r)
	return AuthorizationServerMetadata{
		Issuer:                            h.issuer(r),
		AuthorizationEndpoint:             baseURL + EndpointAuthorize,
		TokenEndpoint:                     baseURL + EndpointToken,
		RegistrationEndpoint:              baseURL + EndpointRegister,
		ResponseTypesSupported:            []string{server.ResponseTypeCode},
		GrantTypesSupported:               []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		CodeChallengeMethodsSupported:     []string{server.PKCEMethodS256},
		TokenEndpointAuthMethodsSupported: []string{TokenEndpointAuthMethodNone, TokenEndpointAuthMethodClientSecretPost},
	}
}

func (h *Handler) buildExtendedMetadata(r *http.Request) ExtendedAuthorizationServerMetadata {
	baseURL := h.baseURL(r)

	base := h.buildAuthServerMetadata(r)
	base.CodeChallengeMethodsSupported = []string{"plain", server.PKCEMethodS256}
	base.TokenEndpointAuthMethodsSupported = []string{TokenEndpointAuthMethodClientSecretBasic, TokenEndpointAuthMethodClientSecretPost}

	return ExtendedAuthorizationServerMetadata{
		AuthorizationServerMetadata:                base,
		JWKSURI:                                    baseURL + EndpointJWKS,
		EndSessionEndpoint:                         baseURL + EndpointLogout,
		SubjectTypesSupported:                      []string{"public"},
		IDTokenSigningAlgValuesSupported:           []string{"RS256"},
		ScopesSupported:                            []string{"openid", "profile", "email", "offline_access"},
		ClaimsSupported:                            []string{"sub", "name", "email"},
		ResponseModesSupported:                     []string{"query", "fragment"},
		AuthorizationResponseIssParameterSupported: true,
	}
}

// ServeAuthorization handles the authorization endpoint. There is no consent
// step: a valid request is redirected straight back with the fixed code.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.authorize")
		defer span.End()
	}

	clientIP := h.clientIP(r)
	instrumentation.AddSecurityAttributes(span, clientIP, security.GetRequestID(ctx))

	query := r.URL.Query()
	params := server.AuthorizationParams{
		ResponseType:        query.Get("response_type"),
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
		Scope:               query.Get("scope"),
	}

	result, err := h.srv.AuthServer.Authorize(ctx, params)
	if err != nil {
		instrumentation.SetSpanError(span, "authorization rejected")

		var grantErr *server.GrantError
		if h.permissive() && errors.As(err, &grantErr) {
			h.recordHTTPMetrics(ctx, "authorize", r.Method, http.StatusBadRequest, startTime)
			http.Error(w, "redirect_uri is required", http.StatusBadRequest)
			return
		}

		oauthErr := h.toOAuthError(err)
		h.recordHTTPMetrics(ctx, "authorize", r.Method, oauthErr.Status, startTime)
		h.writeError(w, r, oauthErr)
		return
	}

	h.srv.Auditor.LogAuthorizationCodeIssued(ctx, params.ClientID, params.RedirectURI, clientIP, result.Replaced)
	h.logger.Info("Authorization code issued",
		"client_id", params.ClientID,
		"ip", clientIP,
		"replaced", result.Replaced)

	h.recordHTTPMetrics(ctx, "authorize", r.Method, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// ServeToken handles the OAuth token endpoint. Bodies may be form-encoded or JSON.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token")
		defer span.End()
	}

	clientIP := h.clientIP(r)
	instrumentation.AddSecurityAttributes(span, clientIP, security.GetRequestID(ctx))

	req, err := parseTokenRequest(w, r)
	if err != nil {
		h.logger.Debug("Failed to parse token request", "ip", clientIP, "error", err)
		instrumentation.RecordError(span, err)
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, r, ErrInvalidRequest("Failed to parse request"))
		return
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, req.GrantType))

	var grant *server.Grant
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		grant, err = h.srv.AuthServer.ExchangeAuthorizationCode(ctx, server.CodeExchange{
			Code:         req.Code,
			RedirectURI:  req.RedirectURI,
			CodeVerifier: req.CodeVerifier,
			ClientID:     req.ClientID,
		})
		if err != nil {
			h.srv.Auditor.LogCodeRedemptionFailed(ctx, req.ClientID, clientIP, grantErrorReason(err))
		} else {
			h.srv.Auditor.LogTokenIssued(ctx, grant.ClientID, clientIP, grant.Scope)
		}
	case GrantTypeRefreshToken:
		grant, err = h.srv.AuthServer.RefreshAccessToken(ctx, req.RefreshToken)
		h.srv.Auditor.LogTokenRefreshed(ctx, clientIP, err == nil)
	default:
		err = h.srv.AuthServer.UnsupportedGrantType(req.GrantType)
	}

	if err != nil {
		instrumentation.SetSpanError(span, "token request rejected")
		oauthErr := h.toOAuthError(err)
		h.recordHTTPMetrics(ctx, "token", r.Method, oauthErr.Status, startTime)
		h.writeError(w, r, oauthErr)
		return
	}

	h.logger.Info("Token issued",
		"grant_type", req.GrantType,
		"client_id", grant.ClientID,
		"ip", clientIP,
		"token_prefix", util.SafeTruncate(grant.Token.AccessToken, tokenLogLength))

	h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)
	h.writeTokenResponse(w, r, grant)
}

// parseTokenRequest reads token parameters from a JSON or form-encoded body
func parseTokenRequest(w http.ResponseWriter, r *http.Request) (*TokenRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	if render.GetRequestContentType(r) == render.ContentTypeJSON {
		var req TokenRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		ClientID:     r.PostFormValue("client_id"),
	}, nil
}

// ServeClientRegistration returns a static client record. Nothing is persisted
// and malformed bodies are treated as empty requests.
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()
	ctx := r.Context()
	clientIP := h.clientIP(r)
	creds := h.srv.Config.Credentials

	var req ClientRegistrationRequest
	if err := render.DecodeJSON(io.LimitReader(r.Body, maxRequestBodyBytes), &req); err != nil {
		h.logger.Debug("Ignoring malformed registration body", "ip", clientIP, "error", err)
		req = ClientRegistrationRequest{}
	}

	clientName := req.ClientName
	if clientName == "" {
		clientName = DefaultClientName
	}
	redirectURIs := req.RedirectURIs
	if redirectURIs == nil {
		redirectURIs = []string{}
	}

	client := ClientRegistrationResponse{
		ClientID:                creds.ClientID,
		ClientName:              clientName,
		RedirectURIs:            redirectURIs,
		GrantTypes:              []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		ResponseTypes:           []string{server.ResponseTypeCode},
		TokenEndpointAuthMethod: TokenEndpointAuthMethodClientSecretPost,
	}

	h.srv.Instrumentation.Metrics().RecordClientRegistration(ctx, string(h.srv.Config.Authorization.Mode))
	h.srv.Auditor.LogClientRegistered(ctx, creds.ClientID, clientName, clientIP)
	security.SetSecurityHeaders(w, h.baseURL(r))

	if !h.permissive() {
		h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusCreated, startTime)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, client)
		return
	}

	scope := req.Scope
	if scope == "" {
		scope = server.DefaultPermissiveScope
	}
	client.TokenEndpointAuthMethod = TokenEndpointAuthMethodClientSecretBasic

	h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusOK, startTime)
	render.JSON(w, r, ConfidentialClientRegistrationResponse{
		ClientRegistrationResponse: client,
		ClientSecret:               creds.ClientSecret,
		ClientIDIssuedAt:           time.Now().Unix(),
		ClientSecretExpiresAt:      0,
		Scope:                      scope,
	})
}

// ServeJWKS serves a static key set. The key is illustrative only.
func (h *Handler) ServeJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetDiscoveryHeaders(w)
	render.JSON(w, r, JSONWebKeySet{
		Keys: []JSONWebKey{{
			KeyType:   "RSA",
			Use:       "sig",
			KeyID:     jwksKeyID,
			Algorithm: "RS256",
			Modulus:   jwksModulus,
			Exponent:  jwksExponent,
		}},
	})
}

// ServeLogout acknowledges a logout. There is no session to end.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	render.PlainText(w, r, LogoutMessage)
}

// ServeHealth reports liveness together with the configured server name
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{Status: "ok", Server: h.srv.Config.Name})
}

// rateLimit rejects requests from client IPs that exhausted their budget.
// A no-op when no limiter is configured.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.srv.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := h.clientIP(r)
		if h.srv.RateLimiter.Allow(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		endpoint := strings.TrimPrefix(r.URL.Path, "/")
		h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
		h.srv.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), endpoint)
		h.srv.Auditor.LogRateLimitExceeded(r.Context(), clientIP, endpoint)

		w.Header().Set("Retry-After", "1")
		h.writeError(w, r, ErrRateLimitExceeded("Rate limit exceeded. Please try again later."))
	})
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, r *http.Request, grant *server.Grant) {
	security.SetSecurityHeaders(w, h.baseURL(r))

	tokenType := grant.Token.TokenType
	if tokenType == "" {
		tokenType = server.TokenTypeBearer
	}

	render.JSON(w, r, TokenResponse{
		AccessToken:  grant.Token.AccessToken,
		TokenType:    tokenType,
		ExpiresIn:    grant.Token.ExpiresIn,
		RefreshToken: grant.Token.RefreshToken,
		Scope:        grant.Scope,
	})
}

// writeError writes an OAuth error body. Descriptions are dropped in permissive mode.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err *OAuthError) {
	security.SetSecurityHeaders(w, h.baseURL(r))

	description := err.Description
	if h.permissive() {
		description = ""
	}

	render.Status(r, err.Status)
	render.JSON(w, r, ErrorResponse{
		Error:            err.Code,
		ErrorDescription: description,
	})
}

// toOAuthError maps state machine errors onto HTTP errors. Anything that is
// not a GrantError is logged and reported as a generic server error.
func (h *Handler) toOAuthError(err error) *OAuthError {
	var grantErr *server.GrantError
	if errors.As(err, &grantErr) {
		return NewOAuthError(grantErr.Code, grantErr.Description, http.StatusBadRequest)
	}
	h.logger.Error("Unexpected authorization server error", "error", err)
	return ErrServerError("Internal server error")
}

func grantErrorReason(err error) string {
	var grantErr *server.GrantError
	if errors.As(err, &grantErr) {
		return grantErr.Reason
	}
	return "internal_error"
}

// baseURL derives the absolute base URL of this server from the Host header
func (h *Handler) baseURL(r *http.Request) string {
	return h.srv.Config.PublicScheme + "://" + r.Host
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.srv.Config.TrustProxy, h.srv.Config.TrustedProxyCount)
}

func (h *Handler) permissive() bool {
	ac := h.srv.Config.Authorization
	return ac != nil && ac.Mode == server.ModePermissive
}

// recordHTTPMetrics records HTTP request metrics (total count and duration) and
// annotates the active span, if any
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	instrumentation.AddHTTPAttributes(trace.SpanFromContext(ctx), method, endpoint, status)
	duration := time.Since(startTime).Seconds() * 1000
	h.srv.Instrumentation.Metrics().RecordHTTPRequest(context.WithoutCancel(ctx), method, endpoint, status, duration)
}
