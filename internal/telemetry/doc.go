// Package telemetry wires OpenTelemetry tracing and metrics export.
//
// Spans from the classification pipeline, the synthesis orchestrator and the
// validator are exported over OTLP (gRPC or HTTP) to a collector. The HTTP
// adapter's request metrics go through the same meter provider. Pipeline
// counters are separate and served by Prometheus on /metrics.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Telemetry failures never stop the service. An exporter that cannot be built
// marks the instance degraded and the global no-op providers stay in place.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
