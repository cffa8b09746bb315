// Package instrumentation provides OpenTelemetry metrics and tracing for the testbed servers.
//
// When Config.Enabled is false, no-op providers are used and every Record* call
// is free. When enabled, an SDK tracer provider is created (spans are sampled
// but not exported) together with an SDK meter provider. Setting
// MetricsExporter to "prometheus" attaches a Prometheus exporter backed by a
// private registry, served by MetricsHandler:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:     "mock-auth-server",
//		Enabled:         true,
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// Authorization Server:
//   - oauth.authorization.started{client_id, mode}
//   - oauth.code.exchanged{client_id, pkce_method}
//   - oauth.code.exchange_failed{reason}
//   - oauth.token.refreshed{success}
//   - oauth.client.registered{mode}
//
// Security:
//   - oauth.pkce.validation_failed{method}
//   - oauth.code.reuse_detected
//   - oauth.resource.challenge_issued{reason, www_authenticate}
//   - oauth.rate_limit.exceeded{endpoint}
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.authorization_requests.pending
//
// Span helpers in this package are nil-safe so handlers can call them whether
// or not a tracer was configured.
package instrumentation
