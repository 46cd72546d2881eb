// Package telemetry sets up OpenTelemetry tracing and metrics export for
// ledgerd.
//
// Traces and metrics are exported over OTLP (gRPC by default, or
// http/protobuf) to a collector. When telemetry is disabled the global no-op
// providers stay in place and instrumented code pays nothing.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	pipeline, err := orchestrator.New(deps, orchestrator.WithTracerProvider(tel.TracerProvider()))
//
// Tests use NewTestTelemetry, which records spans in memory.
package telemetry
