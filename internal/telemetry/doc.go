// Package telemetry sets up OpenTelemetry tracing and metrics for forge.
//
// Traces go to an OTLP collector when an endpoint is configured. Metrics are
// always exposed through a Prometheus registry served at /metrics, and are
// additionally pushed over OTLP when an endpoint is set.
//
// Initialization never fails the process: an exporter that cannot be built
// marks the instance degraded and the corresponding accessor falls back to the
// global (no-op by default) provider.
//
//	tel, err := telemetry.New(ctx, telemetry.NewDefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	coord, _ := coordinator.New(gen, val,
//	    coordinator.WithTracer(tel.Tracer("forge")),
//	    coordinator.WithMeter(tel.Meter("forge")),
//	)
//
// Tests use NewTestTelemetry, which records spans in memory and collects
// metrics with a ManualReader.
package telemetry
