package server

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/storage"
)

// Server implements the authorization-server state machine.
// It holds no HTTP state; the root package translates requests into calls here.
type Server struct {
	store           storage.AuthorizationRequestStore
	Instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	metrics         *instrumentation.Metrics
	Logger          *slog.Logger
	Config          *Config
}

// New creates a new authorization server.
// Unset Config fields are filled with defaults; the caller's Config is not modified.
func New(store storage.AuthorizationRequestStore, config *Config, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("authorization request store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := applyDefaults(config)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.logConfiguration(logger)

	return &Server{
		store:  store,
		Logger: logger,
		Config: cfg,
	}, nil
}

// SetInstrumentation sets the instrumentation used for spans and flow metrics
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst == nil {
		s.tracer = nil
		s.metrics = nil
		return
	}
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()
}

// Store returns the pending authorization request store
func (s *Server) Store() storage.AuthorizationRequestStore {
	return s.store
}
