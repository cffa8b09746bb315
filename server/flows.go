package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/internal/util"
	"github.com/giantswarm/mcp-oauth-testbed/storage"
)

const (
	// ResponseTypeCode is the only response type supported at the authorize endpoint
	ResponseTypeCode = "code"

	// TokenTypeBearer is the token_type of every issued access token
	TokenTypeBearer = "Bearer"

	// tokenLogLength bounds how much of a code or token is written to logs
	tokenLogLength = 8
)

// AuthorizationParams are the query parameters of an authorize request
type AuthorizationParams struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
}

// AuthorizationResult is the outcome of a successful authorize request
type AuthorizationResult struct {
	// Code is the issued authorization code
	Code string

	// RedirectURL is the redirect_uri with code and state appended
	RedirectURL string

	// Replaced reports whether a pending request for Code was overwritten
	Replaced bool
}

// CodeExchange holds the parameters of an authorization_code grant
type CodeExchange struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
	ClientID     string
}

// Grant is the outcome of a successful token request
type Grant struct {
	Token    *oauth2.Token
	Scope    string
	ClientID string
}

// Authorize validates an authorize request and, in strict mode, records the
// pending request under the fixed code. The previous pending request, if any, is replaced.
func (s *Server) Authorize(ctx context.Context, params AuthorizationParams) (*AuthorizationResult, error) {
	ctx, span := s.startSpan(ctx, "authorize")
	defer span.End()

	instrumentation.AddOAuthFlowAttributes(span, params.ClientID, params.Scope)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrResponseType, params.ResponseType),
		attribute.String(instrumentation.AttrAuthorizeMode, string(s.Config.Mode)),
		attribute.Bool(instrumentation.AttrStatePresent, params.State != ""),
	)

	var (
		result *AuthorizationResult
		err    error
	)
	if s.Config.Mode == ModePermissive {
		result, err = s.authorizePermissive(params)
	} else {
		result, err = s.authorizeStrict(ctx, params)
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		s.Logger.Debug("Authorization request rejected",
			"client_id", params.ClientID,
			"error", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordAuthorizationStarted(ctx, params.ClientID, string(s.Config.Mode))
	}
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

func (s *Server) authorizeStrict(ctx context.Context, params AuthorizationParams) (*AuthorizationResult, error) {
	if params.ResponseType != ResponseTypeCode {
		return nil, s.newError(ErrorCodeUnsupportedResponseType,
			"Only code response type is supported", ReasonResponseType)
	}
	if params.CodeChallenge == "" || params.CodeChallengeMethod != PKCEMethodS256 {
		return nil, s.newError(ErrorCodeInvalidRequest,
			"PKCE is required with S256 method", ReasonPKCERequired)
	}
	if params.RedirectURI == "" {
		return nil, s.newError(ErrorCodeInvalidRequest,
			"redirect_uri is required", ReasonMissingRedirectURI)
	}
	redirect, err := parseRedirectURI(params.RedirectURI)
	if err != nil {
		return nil, s.newError(ErrorCodeInvalidRequest,
			"redirect_uri is required", ReasonInvalidRedirectURI)
	}

	code := s.Config.AuthorizationCode

	replaced := false
	if _, err := s.store.GetAuthorizationRequest(ctx, code); err == nil {
		replaced = true
	}

	req := &storage.AuthorizationRequest{
		Code:                code,
		ClientID:            params.ClientID,
		RedirectURI:         params.RedirectURI,
		State:               params.State,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		CreatedAt:           time.Now(),
	}
	if err := s.store.SaveAuthorizationRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save authorization request: %w", err)
	}

	if replaced {
		s.Logger.Info("Replaced pending authorization request",
			"client_id", params.ClientID,
			"code_prefix", util.SafeTruncate(code, tokenLogLength))
	}

	return &AuthorizationResult{
		Code:        code,
		RedirectURL: buildRedirectURL(redirect, code, params.State),
		Replaced:    replaced,
	}, nil
}

// authorizePermissive never touches the store; PKCE parameters are only logged
func (s *Server) authorizePermissive(params AuthorizationParams) (*AuthorizationResult, error) {
	if params.RedirectURI == "" {
		return nil, s.newError(ErrorCodeInvalidRequest,
			"redirect_uri is required", ReasonMissingRedirectURI)
	}
	redirect, err := parseRedirectURI(params.RedirectURI)
	if err != nil {
		return nil, s.newError(ErrorCodeInvalidRequest,
			"redirect_uri is required", ReasonInvalidRedirectURI)
	}

	s.Logger.Info("Permissive authorization request",
		"client_id", params.ClientID,
		"response_type", params.ResponseType,
		"code_challenge_present", params.CodeChallenge != "",
		"code_challenge_method", params.CodeChallengeMethod)

	code := s.Config.AuthorizationCode
	return &AuthorizationResult{
		Code:        code,
		RedirectURL: buildRedirectURL(redirect, code, params.State),
	}, nil
}

// ExchangeAuthorizationCode redeems the fixed authorization code.
//
// In strict mode the checks run in this order: code equality, pending request
// present, redirect_uri match, PKCE verifier. The pending request is removed
// only when every check passes, so concurrent redemptions of one request
// yield exactly one success.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, exchange CodeExchange) (*Grant, error) {
	ctx, span := s.startSpan(ctx, "exchange_authorization_code")
	defer span.End()

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, "authorization_code"))

	if !secretEqual(exchange.Code, s.Config.AuthorizationCode) {
		return nil, s.exchangeFailed(ctx, span, s.newError(ErrorCodeInvalidGrant,
			"Invalid authorization code", ReasonUnknownCode))
	}

	if s.Config.Mode == ModePermissive {
		s.recordCodeExchange(ctx, span, exchange.ClientID, "")
		return s.newGrant(exchange.ClientID), nil
	}

	redeemed, err := s.store.RedeemAuthorizationRequest(ctx, exchange.Code, func(req *storage.AuthorizationRequest) error {
		if exchange.RedirectURI != req.RedirectURI {
			return s.newError(ErrorCodeInvalidGrant, "Redirect URI mismatch", ReasonRedirectURIMismatch)
		}
		if err := validatePKCE(req.CodeChallenge, req.CodeChallengeMethod, exchange.CodeVerifier); err != nil {
			if s.metrics != nil {
				s.metrics.RecordPKCEValidationFailed(ctx, req.CodeChallengeMethod)
			}
			s.Logger.Debug("PKCE validation failed", "client_id", req.ClientID, "error", err)
			return s.newError(ErrorCodeInvalidGrant, "Invalid PKCE code verifier", ReasonPKCEMismatch)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationRequestNotFound) {
			if s.metrics != nil {
				s.metrics.RecordCodeReuseDetected(ctx)
			}
			return nil, s.exchangeFailed(ctx, span, s.newError(ErrorCodeInvalidGrant,
				"Authorization code not found or expired", ReasonNotPending))
		}
		var grantErr *GrantError
		if errors.As(err, &grantErr) {
			return nil, s.exchangeFailed(ctx, span, grantErr)
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	instrumentation.AddPKCEAttributes(span, redeemed.CodeChallengeMethod)
	s.recordCodeExchange(ctx, span, redeemed.ClientID, redeemed.CodeChallengeMethod)
	return s.newGrant(redeemed.ClientID), nil
}

// RefreshAccessToken exchanges the fixed refresh token for the fixed token pair.
// No store state is involved; the refresh token is reusable.
func (s *Server) RefreshAccessToken(ctx context.Context, refreshToken string) (*Grant, error) {
	ctx, span := s.startSpan(ctx, "refresh_access_token")
	defer span.End()

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, "refresh_token"))

	success := secretEqual(refreshToken, s.Config.RefreshToken)
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(ctx, success)
	}
	if !success {
		err := s.newError(ErrorCodeInvalidGrant, "Invalid refresh token", ReasonInvalidRefreshToken)
		instrumentation.RecordError(span, err)
		s.Logger.Debug("Refresh token rejected",
			"token_prefix", util.SafeTruncate(refreshToken, tokenLogLength))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return s.newGrant(""), nil
}

// UnsupportedGrantType returns the error for a grant_type other than
// authorization_code and refresh_token
func (s *Server) UnsupportedGrantType(grantType string) error {
	s.Logger.Debug("Unsupported grant type", "grant_type", grantType)
	return s.newError(ErrorCodeUnsupportedGrantType, "Grant type not supported", ReasonGrantType)
}

func (s *Server) newGrant(clientID string) *Grant {
	return &Grant{
		Token: &oauth2.Token{
			AccessToken:  s.Config.AccessToken,
			TokenType:    TokenTypeBearer,
			RefreshToken: s.Config.RefreshToken,
			ExpiresIn:    s.Config.ExpiresIn,
			Expiry:       time.Now().Add(time.Duration(s.Config.ExpiresIn) * time.Second),
		},
		Scope:    s.Config.Scope,
		ClientID: clientID,
	}
}

func (s *Server) recordCodeExchange(ctx context.Context, span trace.Span, clientID, pkceMethod string) {
	if s.metrics != nil {
		s.metrics.RecordCodeExchange(ctx, clientID, pkceMethod)
	}
	instrumentation.AddOAuthFlowAttributes(span, clientID, s.Config.Scope)
	instrumentation.SetSpanSuccess(span)
	s.Logger.Info("Authorization code redeemed", "client_id", clientID)
}

func (s *Server) exchangeFailed(ctx context.Context, span trace.Span, err *GrantError) error {
	if s.metrics != nil {
		s.metrics.RecordCodeExchangeFailed(ctx, err.Reason)
	}
	instrumentation.RecordError(span, err)
	s.Logger.Debug("Authorization code redemption failed", "reason", err.Reason)
	return err
}

// startSpan starts a span when instrumentation is configured; otherwise it
// returns the span already carried by ctx
func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, "server."+name)
}
