package instrumentation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantErr     bool
		wantHandler bool
	}{
		{
			name:   "disabled uses noop providers",
			config: Config{Enabled: false},
		},
		{
			name: "enabled without exporter",
			config: Config{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
		},
		{
			name: "enabled with prometheus exporter",
			config: Config{
				Enabled:         true,
				MetricsExporter: MetricsExporterPrometheus,
			},
			wantHandler: true,
		},
		{
			name: "unknown exporter",
			config: Config{
				Enabled:         true,
				MetricsExporter: "carrier-pigeon",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			if inst.Meter("http") == nil {
				t.Error("Meter('http') returned nil")
			}
			if inst.Tracer("server") == nil {
				t.Error("Tracer('server') returned nil")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.TracerProvider() == nil || inst.MeterProvider() == nil {
				t.Error("providers should not be nil")
			}
			if got := inst.MetricsHandler() != nil; got != tt.wantHandler {
				t.Errorf("MetricsHandler() present = %v, want %v", got, tt.wantHandler)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.config.ServiceName != DefaultServiceName {
		t.Errorf("ServiceName = %q, want %q", inst.config.ServiceName, DefaultServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestPrometheusExport(t *testing.T) {
	inst, err := New(Config{
		Enabled:         true,
		ServiceName:     "mock-auth-server",
		MetricsExporter: MetricsExporterPrometheus,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	inst.Metrics().RecordHTTPRequest(ctx, http.MethodPost, "token", http.StatusOK, 1.5)
	inst.Metrics().RecordCodeExchange(ctx, "c1", "S256")
	if err := inst.RegisterPendingRequestsCallback(func() int64 { return 3 }); err != nil {
		t.Fatalf("RegisterPendingRequestsCallback() error = %v", err)
	}

	w := httptest.NewRecorder()
	inst.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{"oauth_http_requests", "oauth_code_exchanged", "storage_authorization_requests_pending"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRegisterPendingRequestsCallback_Nil(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := inst.RegisterPendingRequestsCallback(nil); err == nil {
		t.Error("RegisterPendingRequestsCallback(nil) should return error")
	}
}

func TestSpanHelpers_NilSafe(t *testing.T) {
	var span trace.Span

	RecordError(span, errors.New("boom"))
	SetSpanSuccess(span)
	SetSpanError(span, "boom")
	AddOAuthFlowAttributes(span, "c1", "mcp")
	AddPKCEAttributes(span, "S256")
	AddHTTPAttributes(span, http.MethodGet, "authorize", http.StatusFound)
	AddChallengeAttributes(span, "missing", true)
	AddSecurityAttributes(span, "127.0.0.1", "req-1")
}

func TestSpanHelpers_RecordingSpan(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	_, span := inst.Tracer("http").Start(context.Background(), "test")
	defer span.End()

	if !span.IsRecording() {
		t.Fatal("span from SDK tracer should be recording")
	}

	AddOAuthFlowAttributes(span, "c1", "")
	AddChallengeAttributes(span, "invalid", false)
	RecordError(span, errors.New("boom"))
}
