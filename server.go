package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/mcpserver"
	"github.com/giantswarm/mcp-oauth-testbed/security"
	"github.com/giantswarm/mcp-oauth-testbed/server"
	"github.com/giantswarm/mcp-oauth-testbed/storage/memory"
)

// Server is one configured testbed server: either a resource server or an
// authorization server, selected by ServerConfig.Type.
type Server struct {
	// Config is the validated configuration with defaults applied
	Config *ServerConfig

	// AuthServer is the authorization state machine; nil for resource servers
	AuthServer *server.Server

	// Store holds pending authorization requests; nil for resource servers
	Store *memory.Store

	Instrumentation *instrumentation.Instrumentation
	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter // nil unless RateLimit.RequestsPerSecond > 0

	downstream http.Handler
	router     *chi.Mux
	logger     *slog.Logger
}

// NewServer creates a server for config. It is the only constructor for
// both roles; the returned server's routes are available through Handler.
func NewServer(config *ServerConfig, logger *slog.Logger) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := config.withDefaults()
	logger = logger.With("server", cfg.Name, "type", string(cfg.Type))

	instCfg := cfg.Instrumentation
	if instCfg.ServiceName == "" {
		instCfg.ServiceName = cfg.Name
	}
	inst, err := instrumentation.New(instCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}

	s := &Server{
		Config:          cfg,
		Instrumentation: inst,
		Auditor:         security.NewAuditor(logger, cfg.EnableAuditLogging),
		logger:          logger,
	}
	s.Auditor.SetMetrics(inst.Metrics())

	switch cfg.Type {
	case ServerTypeAuthorization:
		if err := s.initAuthorizationServer(); err != nil {
			_ = inst.Shutdown(context.Background())
			return nil, err
		}
	case ServerTypeResource:
		s.downstream = cfg.Resource.Downstream
		if s.downstream == nil {
			s.downstream = mcpserver.NewHandler(cfg.Name, logger)
		}
	}

	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.RateLimiter = security.NewRateLimiter(cfg.RateLimit, logger)
	}

	s.router = chi.NewRouter()
	NewHandler(s, logger).RegisterRoutes(s.router)

	s.logConfiguration()
	return s, nil
}

func (s *Server) initAuthorizationServer() error {
	s.Store = memory.New()
	s.Store.SetLogger(s.logger)
	if err := s.Store.SetInstrumentation(s.Instrumentation); err != nil {
		return fmt.Errorf("failed to instrument authorization request store: %w", err)
	}

	creds := s.Config.Credentials
	authServer, err := server.New(s.Store, &server.Config{
		Mode:              s.Config.Authorization.Mode,
		AuthorizationCode: creds.AuthorizationCode,
		AccessToken:       creds.AccessToken,
		RefreshToken:      creds.RefreshToken,
		ExpiresIn:         creds.ExpiresIn,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create authorization server: %w", err)
	}
	authServer.SetInstrumentation(s.Instrumentation)

	s.AuthServer = authServer
	return nil
}

// Handler returns the HTTP handler serving every route of this server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown stops the rate limiter and flushes instrumentation.
// It does not stop any http.Server serving Handler.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.RateLimiter != nil {
		s.RateLimiter.Stop()
	}

	var errs []error
	if err := s.Instrumentation.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("instrumentation shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Server) logConfiguration() {
	cfg := s.Config
	switch cfg.Type {
	case ServerTypeResource:
		s.logger.Info("Resource server configured",
			"metadata_path", cfg.Resource.MetadataPath,
			"protected_path", cfg.Resource.ProtectedPath,
			"authorization_servers", cfg.Resource.authorizationServers(),
			"www_authenticate", !cfg.Resource.DisableWWWAuthenticate)
	case ServerTypeAuthorization:
		s.logger.Info("Authorization server configured",
			"mode", string(cfg.Authorization.Mode),
			"metadata_path", cfg.Authorization.MetadataPath,
			"tenant_path", cfg.Authorization.TenantPath,
			"issuer_override", cfg.Authorization.Issuer != "")
	}
	if cfg.PublicScheme != DefaultPublicScheme {
		s.logger.Warn("Absolute URLs use a non-default scheme", "scheme", cfg.PublicScheme)
	}
}
