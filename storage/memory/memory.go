package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/internal/util"
	"github.com/giantswarm/mcp-oauth-testbed/storage"
)

// codeLogLength is the number of characters of an authorization code included in logs
const codeLogLength = 8

// Store is an in-memory storage.AuthorizationRequestStore.
type Store struct {
	mu       sync.Mutex
	requests map[string]*storage.AuthorizationRequest

	// pendingCount mirrors len(requests) for lock-free gauge collection
	pendingCount atomic.Int64

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	logger          *slog.Logger
}

// Compile-time interface check
var _ storage.AuthorizationRequestStore = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		requests: make(map[string]*storage.AuthorizationRequest),
		logger:   slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store and
// registers the pending request gauge.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) error {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.pendingCount.Store(int64(len(s.requests)))
	s.mu.Unlock()

	if inst == nil {
		return nil
	}
	return inst.RegisterPendingRequestsCallback(func() int64 { return s.pendingCount.Load() })
}

// Count returns the number of pending authorization requests
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// SaveAuthorizationRequest stores req, replacing any pending request with the same code
func (s *Store) SaveAuthorizationRequest(ctx context.Context, req *storage.AuthorizationRequest) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_request")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_request", err, startTime)
	}()

	if req == nil {
		err = fmt.Errorf("authorization request cannot be nil")
		return err
	}
	if req.Code == "" {
		err = fmt.Errorf("authorization code cannot be empty")
		return err
	}

	stored := *req
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, replaced := s.requests[stored.Code]; replaced {
		s.logger.Debug("Replacing pending authorization request",
			"code_prefix", util.SafeTruncate(stored.Code, codeLogLength))
	}
	s.requests[stored.Code] = &stored
	s.pendingCount.Store(int64(len(s.requests)))

	return nil
}

// GetAuthorizationRequest returns a copy of the pending request for code
func (s *Store) GetAuthorizationRequest(ctx context.Context, code string) (*storage.AuthorizationRequest, error) {
	ctx, span := s.startStorageSpan(ctx, "get_authorization_request")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_authorization_request", err, startTime)
	}()

	s.mu.Lock()
	req, ok := s.requests[code]
	s.mu.Unlock()

	if !ok {
		err = storage.ErrAuthorizationRequestNotFound
		return nil, err
	}

	found := *req
	return &found, nil
}

// RedeemAuthorizationRequest validates and deletes the pending request for code
// while holding the store lock. A failed validation leaves the request in place.
func (s *Store) RedeemAuthorizationRequest(ctx context.Context, code string, validate func(*storage.AuthorizationRequest) error) (*storage.AuthorizationRequest, error) {
	ctx, span := s.startStorageSpan(ctx, "redeem_authorization_request")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "redeem_authorization_request", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[code]
	if !ok {
		err = storage.ErrAuthorizationRequestNotFound
		return nil, err
	}

	redeemed := *req
	if validate != nil {
		if err = validate(&redeemed); err != nil {
			return nil, err
		}
	}

	delete(s.requests, code)
	s.pendingCount.Store(int64(len(s.requests)))

	s.logger.Debug("Redeemed authorization request",
		"code_prefix", util.SafeTruncate(code, codeLogLength),
		"client_id", redeemed.ClientID)

	return &redeemed, nil
}

// DeleteAuthorizationRequest removes the pending request for code
func (s *Store) DeleteAuthorizationRequest(ctx context.Context, code string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_authorization_request")
	defer span.End()

	startTime := time.Now()

	s.mu.Lock()
	delete(s.requests, code)
	s.pendingCount.Store(int64(len(s.requests)))
	s.mu.Unlock()

	s.recordStorageOperation(ctx, span, "delete_authorization_request", nil, startTime)
	return nil
}

// startStorageSpan starts a span for a storage operation; without a tracer it returns the span in ctx
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
