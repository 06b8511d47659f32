// Package telemetry provides observability for strata.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry) and metrics (Prometheus) for the lookup engine and
// the CLI.
//
// # Usage
//
// Initialize telemetry at startup, usually from the runtime settings:
//
//	tel, err := telemetry.NewTelemetry(telemetry.FromSettings(settings, version))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Hand the pieces to the lookup adapter:
//
//	adapter, err := lookup.NewAdapter(lookup.AdapterConfig{
//	    Logger:  tel.Logger.Zerolog(),
//	    Metrics: tel.Metrics,
//	    Tracer:  tel.Tracer.Tracer(),
//	    Loader:  registry,
//	})
//
// # Metrics
//
// Metrics implements lookup.Recorder and exposes:
//
//	strata_lookups_total{outcome}                   found, default, not_found or error
//	strata_lookup_duration_seconds                  histogram of public lookups
//	strata_provider_calls_total{function,kind}      backend function invocations
//	strata_data_cache_hits_total{function}          results served from the session cache
//
// Serve them with Metrics.Serve; the watch command does so when metrics are
// enabled in the settings.
//
// # Tracing
//
// The adapter opens one span per public lookup and one per backend function
// invocation. Exporters: otlp (gRPC), stdout and none.
package telemetry
