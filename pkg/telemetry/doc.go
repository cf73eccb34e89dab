// Package telemetry provides observability for the workflow engine:
// structured logging, distributed tracing, Prometheus metrics, and a
// lightweight event bus.
//
// The four components are configured together through Config and
// bundled into a single Telemetry value:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	ctx = tel.WithContext(ctx)
//	defer tel.Shutdown(ctx)
//
// # Logging
//
// Logger wraps zerolog with helpers that attach workflow fields
// (run_id, workflow, action, driver) so every line of a run carries
// the same correlation keys. Loggers travel through the context:
//
//	log := telemetry.FromContext(ctx)
//	log.WithRunID(runID).Info("run started")
//
// # Tracing
//
// Tracer wraps OpenTelemetry with span helpers for the three nesting
// levels of a run: the run itself, each action, and each browser
// driver call. Exporters: otlp (gRPC), stdout, or none.
//
// # Metrics
//
// Metrics exposes Prometheus counters, histograms, and gauges for
// runs, actions, driver calls, retries, loop iterations, and policy
// violations. When enabled, an HTTP endpoint serves them on the
// configured address.
//
// # Events
//
// EventPublisher fans out run and action lifecycle events to
// subscribers, optionally buffered and batched. The event type
// strings match the rows the store writes to its event log, so a
// store subscriber can persist them directly.
package telemetry
